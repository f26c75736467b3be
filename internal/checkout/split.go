package checkout

import "ms-booking/internal/models"

// PaymentSplit is the outcome of the split decision: how much of the total is
// drained from the voucher and how much goes through the card gateway. The
// two parts always sum exactly to the booking total.
type PaymentSplit struct {
	VoucherCents int64
	StripeCents  int64
	Method       models.PaymentMethod
}

// Split decides the settlement path for a booking. All amounts are integer
// cents, so there is no rounding path: voucher + stripe == total by
// construction.
//
//   - no voucher:            {0, total, card}
//   - balance covers total:  {total, 0, voucher}
//   - otherwise:             {balance, total - balance, mixed}
func Split(totalCents, voucherBalanceCents int64) PaymentSplit {
	if voucherBalanceCents <= 0 {
		return PaymentSplit{VoucherCents: 0, StripeCents: totalCents, Method: models.MethodCard}
	}
	if voucherBalanceCents >= totalCents {
		return PaymentSplit{VoucherCents: totalCents, StripeCents: 0, Method: models.MethodVoucher}
	}
	return PaymentSplit{
		VoucherCents: voucherBalanceCents,
		StripeCents:  totalCents - voucherBalanceCents,
		Method:       models.MethodMixed,
	}
}
