// gosesame-scan scans for nearby SESAME devices and prints each
// decoded advertisement until the scan duration elapses or it is
// interrupted.
//
// Usage:
//
//	gosesame-scan [-duration 10s]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/candyhouse/gosesame/pkg/ble"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "scan duration")
	flag.Parse()

	manager, err := ble.NewManager(ble.ManagerConfig{})
	if err != nil {
		log.Fatalf("create manager: %v", err)
	}
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	go waitForSignal(cancel)

	advertisements, err := manager.Scan(ctx)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	for adv := range advertisements {
		log.Printf("%s rssi=%d model=%s registered=%v uuid=%s",
			adv.BTAddress, adv.RSSI, adv.ProductModel.ModelName(), adv.IsRegistered, adv.DeviceUUID)
	}
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}
