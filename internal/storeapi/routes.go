// Package storeapi serves the customer-facing storefront API.
package storeapi

import "sync"

var once sync.Once

// Init registers every storefront route. Safe to call more than once.
func Init() {
	once.Do(func() {
		registerAuthRoutes()
		registerAccountRoutes()
		registerCatalogRoutes()
		registerReviewRoutes()
		registerCartRoutes()
		registerOfferRoutes()
		registerCheckoutRoutes()
		registerOrderRoutes()
	})
}
