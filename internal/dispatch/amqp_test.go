package dispatch

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDeliveryAttemptsAcceptsBrokerIntegerWidths(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil table", nil, 0},
		{"header absent", amqp.Table{}, 0},
		{"int32 as published", amqp.Table{attemptsHeader: int32(2)}, 2},
		{"int64 from broker", amqp.Table{attemptsHeader: int64(5)}, 5},
		{"plain int", amqp.Table{attemptsHeader: 1}, 1},
		{"float from json tooling", amqp.Table{attemptsHeader: float64(3)}, 3},
		{"unusable type", amqp.Table{attemptsHeader: "two"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deliveryAttempts(tc.headers); got != tc.want {
				t.Fatalf("deliveryAttempts(%v) = %d, want %d", tc.headers, got, tc.want)
			}
		})
	}
}
