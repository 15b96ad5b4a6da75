package app

import "errors"

var (
	errIdentityUnresolved   = errors.New("no authenticated or device identity")
	errStoreUnavailable     = errors.New("backing store unavailable")
	errUnknownBillingPrice  = errors.New("unknown billing price id")
	errSubscriptionMissing  = errors.New("no subscription on checkout session")
	errSubscriptionNoPrices = errors.New("subscription has no price items")
)
