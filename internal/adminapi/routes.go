// Package adminapi serves the administration API under /api/v1/admin.
package adminapi

import "sync"

var once sync.Once

// Init registers every admin route. Safe to call more than once.
func Init() {
	once.Do(func() {
		registerProductRoutes()
		registerTaxonomyRoutes()
		registerMediaRoutes()
		registerStorefrontRoutes()
		registerOfferRoutes()
		registerOrderRoutes()
		registerUserRoutes()
		registerReviewRoutes()
		registerAnalyticsRoutes()
		registerSettingsRoutes()
		registerSchedulerRoutes()
		registerWhatsAppRoutes()
		registerSystemRoutes()
	})
}
