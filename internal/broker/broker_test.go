package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_IsTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:         false,
		OrderStatusSubmitted:       false,
		OrderStatusPartiallyFilled: false,
		OrderStatusFilled:          true,
		OrderStatusCanceled:        true,
		OrderStatusRejected:        true,
		OrderStatusExpired:         true,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.IsTerminal(), string(status))
	}
}
