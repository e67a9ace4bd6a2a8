package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOprLog{},
	&Scheduler{},
	// Accounts
	&User{},
	&Address{},
	// Catalog
	&Category{},
	&Tag{},
	&Size{},
	&Product{},
	&Media{},
	&Review{},
	// Storefront
	&HomePageImage{},
	&TopPickProduct{},
	&Offer{},
	// Orders
	&CartItem{},
	&Order{},
	&OrderItem{},
	&OrderStatusLog{},
}
