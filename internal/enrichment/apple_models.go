package enrichment

// AppleModel is one entry in the compile-time Apple model-code lookup
// table: a raw identifier like "iPhone14,6" maps to a marketing name and a
// coarse device type.
type AppleModel struct {
	Name       string
	DeviceType string
}

// appleModelTable is a small seed table, not Apple's full model registry —
// it covers the model codes common enough to be worth a direct lookup
// rather than falling through to a generic "Apple Device" classification.
var appleModelTable = map[string]AppleModel{
	"iPhone14,6":  {Name: "iPhone SE (3rd generation)", DeviceType: "phone"},
	"iPhone14,7":  {Name: "iPhone 14", DeviceType: "phone"},
	"iPhone14,8":  {Name: "iPhone 14 Plus", DeviceType: "phone"},
	"iPhone15,2":  {Name: "iPhone 14 Pro", DeviceType: "phone"},
	"iPhone15,3":  {Name: "iPhone 14 Pro Max", DeviceType: "phone"},
	"iPhone15,4":  {Name: "iPhone 15", DeviceType: "phone"},
	"iPhone15,5":  {Name: "iPhone 15 Plus", DeviceType: "phone"},
	"iPhone16,1":  {Name: "iPhone 15 Pro", DeviceType: "phone"},
	"iPhone16,2":  {Name: "iPhone 15 Pro Max", DeviceType: "phone"},
	"iPad13,18":   {Name: "iPad (10th generation)", DeviceType: "tablet"},
	"iPad13,1":    {Name: "iPad Air (4th generation)", DeviceType: "tablet"},
	"iPad14,1":    {Name: "iPad mini (6th generation)", DeviceType: "tablet"},
	"MacBookPro18,3": {Name: "MacBook Pro (14-inch, 2021)", DeviceType: "laptop"},
	"MacBookAir10,1": {Name: "MacBook Air (M1, 2020)", DeviceType: "laptop"},
	"Mac14,2":     {Name: "MacBook Air (M2, 2022)", DeviceType: "laptop"},
	"Watch7,3":    {Name: "Apple Watch Series 9", DeviceType: "wearable"},
	"AppleTV11,1": {Name: "Apple TV 4K (3rd generation)", DeviceType: "tv"},
}
