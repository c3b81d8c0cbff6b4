package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDeliveryRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewDelivery("http://a.example/analytics")

	if err := d.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := d.Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestDeliveryEndpointsAreDistinct(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewDelivery("http://a.example/analytics")
	b := NewDelivery("http://b.example/analytics")
	if err := a.Register(reg); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := b.Register(reg); err != nil {
		t.Fatalf("Register b: %v", err)
	}

	a.EventsEnqueued.Add(3)
	b.EventsEnqueued.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "pipeline_events_enqueued_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	if got["http://a.example/analytics"] != 3 || got["http://b.example/analytics"] != 1 {
		t.Fatalf("enqueued by endpoint = %v", got)
	}
}

func TestDeliverySameEndpointTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewDelivery("http://a.example/analytics").Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := NewDelivery("http://a.example/analytics").Register(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
