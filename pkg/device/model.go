package device

import (
	"fmt"

	"github.com/candyhouse/gosesame/pkg/sesameerr"
)

// ProductModel identifies a SESAME product family.
type ProductModel struct {
	name       string
	isLocker   bool
	typeByte   byte
	isBot      bool
	newProfile func() Profile
}

var (
	// WM2 carries no device factory in the original implementation
	// (deviceFactory: None) — it advertises but is never driven through
	// a session.
	WM2 = ProductModel{name: "wm_2", isLocker: false, typeByte: 1}
	SS2 = ProductModel{name: "sesame_2", isLocker: true, typeByte: 0, newProfile: newLockProfile}
	SS4 = ProductModel{name: "sesame_4", isLocker: true, typeByte: 4, newProfile: newLockProfile}

	SesameBot1 = ProductModel{name: "ssmbot_1", isLocker: true, isBot: true, typeByte: 2, newProfile: newBotProfile}
)

var productsByTypeByte = map[byte]ProductModel{
	WM2.typeByte:        WM2,
	SS2.typeByte:        SS2,
	SS4.typeByte:        SS4,
	SesameBot1.typeByte: SesameBot1,
}

var productsByName = map[string]ProductModel{
	WM2.name:        WM2,
	SS2.name:        SS2,
	SS4.name:        SS4,
	SesameBot1.name: SesameBot1,
}

// ModelName returns the product's wire/model identifier string.
func (m ProductModel) ModelName() string { return m.name }

// IsLocker reports whether the product has a lockable mechanism.
func (m ProductModel) IsLocker() bool { return m.isLocker }

// IsBot reports whether the product is the button-press bot family,
// which exposes click() in addition to lock/unlock/toggle.
func (m ProductModel) IsBot() bool { return m.isBot }

// ProductTypeByte returns the byte carried in manufacturer data that
// identifies this product.
func (m ProductModel) ProductTypeByte() byte { return m.typeByte }

// NewProfile builds the Profile that parameterizes a Session for this
// product family, or nil if the product has no session profile (WM2).
func (m ProductModel) NewProfile() Profile {
	if m.newProfile == nil {
		return nil
	}
	return m.newProfile()
}

// ProductModelByTypeByte looks up a ProductModel by its manufacturer-data
// product type byte.
func ProductModelByTypeByte(b byte) (ProductModel, error) {
	m, ok := productsByTypeByte[b]
	if !ok {
		return ProductModel{}, sesameerr.Wrap("device.ProductModelByTypeByte", sesameerr.KindUnsupportedDevice,
			fmt.Errorf("unknown product type byte %#x", b))
	}
	return m, nil
}

// ProductModelByName looks up a ProductModel by its model name string.
func ProductModelByName(name string) (ProductModel, error) {
	m, ok := productsByName[name]
	if !ok {
		return ProductModel{}, sesameerr.Wrap("device.ProductModelByName", sesameerr.KindUnsupportedDevice,
			fmt.Errorf("unknown device model %q", name))
	}
	return m, nil
}
