package service

import "errors"

var (
	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCustomerNotFound is returned when a customer address is not registered
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrShopNotFound is returned when a shop cannot be found
	ErrShopNotFound = errors.New("shop not found")
	// ErrShopInactive is returned when an inactive shop issues rewards or requests redemptions
	ErrShopInactive = errors.New("shop is not active")

	// ErrInsufficientRepairAmount is returned when a repair is below the reward threshold
	ErrInsufficientRepairAmount = errors.New("repair amount below reward threshold")
	// ErrDailyLimitExceeded is returned when a base reward would exceed the daily cap
	ErrDailyLimitExceeded = errors.New("daily earning limit exceeded")
	// ErrMonthlyLimitExceeded is returned when a base reward would exceed the monthly cap
	ErrMonthlyLimitExceeded = errors.New("monthly earning limit exceeded")
	// ErrInsufficientShopBalance is returned when a shop cannot fund a bonus it was charged for
	ErrInsufficientShopBalance = errors.New("insufficient shop rcn balance")

	// ErrInvalidAmount is returned when a redemption amount is not positive or nothing is redeemable
	ErrInvalidAmount = errors.New("invalid redemption amount")
	// ErrSessionNotFound is returned when a redemption session does not exist
	ErrSessionNotFound = errors.New("redemption session not found")
	// ErrSessionExpired is returned when a redemption session is acted on after its expiry
	ErrSessionExpired = errors.New("redemption session expired")
	// ErrInvalidSessionState is returned when a session is no longer pending
	ErrInvalidSessionState = errors.New("redemption session is not pending")
	// ErrSignatureInvalid is returned when the approval signature does not belong to the customer
	ErrSignatureInvalid = errors.New("invalid approval signature")
	// ErrInsufficientBalance is returned when the customer's balance no longer covers the session
	ErrInsufficientBalance = errors.New("insufficient customer balance")
)
