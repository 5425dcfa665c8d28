package domain

import (
	"testing"
	"time"
)

func TestServiceState_Outranks(t *testing.T) {
	order := []ServiceState{
		ServiceStateCreated,
		ServiceStateRegistered,
		ServiceStateLocated,
		ServiceStateSubscribed,
	}
	for i := 1; i < len(order); i++ {
		if !order[i].Outranks(order[i-1]) {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
		if order[i-1].Outranks(order[i]) {
			t.Errorf("%s should not outrank %s", order[i-1], order[i])
		}
	}
}

func TestParseServiceState(t *testing.T) {
	if _, err := ParseServiceState("located"); err != nil {
		t.Errorf("ParseServiceState(located) error = %v", err)
	}
	if _, err := ParseServiceState("Lost"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestServiceInfo_Lifecycle(t *testing.T) {
	var sig Signature
	sig[0] = 9
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		steps []func(*ServiceInfo)
		want  ServiceState
	}{
		{"created", nil, ServiceStateCreated},
		{"register", []func(*ServiceInfo){
			func(s *ServiceInfo) { s.MarkRegistered(sig) },
		}, ServiceStateRegistered},
		{"register then locate", []func(*ServiceInfo){
			func(s *ServiceInfo) { s.MarkRegistered(sig) },
			func(s *ServiceInfo) { s.MarkLocated(nil, &now) },
		}, ServiceStateLocated},
		{"subscribe then register keeps subscribed", []func(*ServiceInfo){
			func(s *ServiceInfo) { s.MarkSubscribed() },
			func(s *ServiceInfo) { s.MarkRegistered(sig) },
		}, ServiceStateSubscribed},
		{"locate then register keeps located", []func(*ServiceInfo){
			func(s *ServiceInfo) { s.MarkLocated(&sig, nil) },
			func(s *ServiceInfo) { s.MarkRegistered(sig) },
		}, ServiceStateLocated},
		{"unsubscribe does not regress", []func(*ServiceInfo){
			func(s *ServiceInfo) { s.MarkSubscribed() },
			func(s *ServiceInfo) { s.MarkUnsubscribed() },
		}, ServiceStateSubscribed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, _ := NewRandomID()
			s := NewRemoteService(id, 0, PublicKey{})
			for _, step := range tt.steps {
				step(s)
			}
			if s.State != tt.want {
				t.Errorf("State = %s, want %s", s.State, tt.want)
			}
		})
	}
}

func TestServiceInfo_MilestonesRecorded(t *testing.T) {
	var sig Signature
	sig[1] = 1
	id, _ := NewRandomID()
	s := NewRemoteService(id, 0, PublicKey{})

	s.MarkSubscribed()
	s.MarkRegistered(sig)

	if !s.Registered {
		t.Error("registered milestone should be recorded after subscribe")
	}
	if s.PrimaryPage == nil || *s.PrimaryPage != sig {
		t.Error("register should set the primary page")
	}

	s.MarkUnsubscribed()
	if s.Subscribed {
		t.Error("unsubscribe should clear the subscribed milestone")
	}
	if s.Milestone() != ServiceStateRegistered {
		t.Errorf("Milestone() = %s, want registered", s.Milestone())
	}
}

func TestServiceInfo_LastUpdatedMonotone(t *testing.T) {
	id, _ := NewRandomID()
	s := NewRemoteService(id, 0, PublicKey{})
	t1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	s.MarkLocated(nil, &t1)
	s.MarkLocated(nil, &t0)

	if !s.LastUpdated.Equal(t1) {
		t.Errorf("LastUpdated = %v, want %v", s.LastUpdated, t1)
	}
}

func TestServiceInfo_Origin(t *testing.T) {
	id, _ := NewRandomID()
	owned := NewOwnedService(id, 0, 1, PublicKey{}, PrivateKey{}, nil)
	if !owned.Origin || owned.PrivateKey == nil {
		t.Error("owned service should be origin with a private key")
	}
	if !owned.Public() {
		t.Error("service without secret key should be public")
	}
	if err := owned.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	remote := NewRemoteService(id, 1, PublicKey{})
	if remote.Origin {
		t.Error("remote service should not be origin")
	}
}
