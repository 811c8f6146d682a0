// Package ads is the listing state driver: post → verify → edit → close →
// reactivate → feature, with identifiers preserved across every call.
package ads

// Category is one endpoint family. All three share identical control flow.
type Category struct {
	Name     string // logical name used in schema/snapshot paths
	Path     string // server path prefix, also the canonical slug prefix
	TypedKey string // key of the typed sub-document in payloads/responses
	Flow     string // payload-store metadata key
	Template string // payload template name
}

var (
	UsedCar = Category{
		Name:     "used_car",
		Path:     "/used-cars",
		TypedKey: "used_car",
		Flow:     "used_car_post",
		Template: "used_car_post",
	}
	Bike = Category{
		Name:     "bike",
		Path:     "/used-bikes",
		TypedKey: "used_bike",
		Flow:     "bike_ad_post",
		Template: "bike_ad_post",
	}
	Accessories = Category{
		Name:     "accessories",
		Path:     "/accessories-spare-parts",
		TypedKey: "accessory",
		Flow:     "accessories_ad_post",
		Template: "accessories_ad_post",
	}
)

// Categories lists every supported endpoint family.
var Categories = []Category{UsedCar, Bike, Accessories}
