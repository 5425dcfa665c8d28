package rpc

import (
	"encoding/json"
	"fmt"

	"dsf/internal/domain"
)

// ResponseKind is one member of the closed set of control-plane responses.
type ResponseKind interface {
	Kind() string

	isResponse()
}

// Response kind names.
const (
	KindNone         = "none"
	KindStatusInfo   = "status"
	KindConnected    = "connected"
	KindPeers        = "peers"
	KindCreated      = "created"
	KindServices     = "services"
	KindRegistered   = "registered"
	KindLocated      = "located"
	KindSubscribed   = "subscribed"
	KindPublished    = "published"
	KindData         = "data"
	KindDatastore    = "datastore"
	KindNsRegistered = "ns_registered"
	KindSubscribers  = "subscribers"
	KindUnrecognised = "unrecognised"
	KindError        = "error"
)

// NoneResponse acknowledges a request with no payload.
type NoneResponse struct{}

// StatusResponse answers Status.
type StatusResponse struct {
	StatusInfo
}

// ConnectedResponse answers PeerConnect.
type ConnectedResponse struct {
	ConnectInfo
}

// PeersResponse carries peer records.
type PeersResponse struct {
	Peers []domain.PeerInfo `json:"peers"`
}

// CreatedResponse answers ServiceCreate.
type CreatedResponse struct {
	CreateInfo
}

// ServicesResponse carries service records.
type ServicesResponse struct {
	Services []domain.ServiceInfo `json:"services"`
}

// RegisteredResponse answers ServiceRegister.
type RegisteredResponse struct {
	RegisterInfo
}

// LocatedResponse answers ServiceSearch.
type LocatedResponse struct {
	LocateInfo
}

// SubscribedResponse answers ServiceSubscribe.
type SubscribedResponse struct {
	SubscribeInfo
}

// PublishedResponse answers DataPublish.
type PublishedResponse struct {
	PublishInfo
}

// DataResponse carries data pages.
type DataResponse struct {
	Data []domain.DataInfo `json:"data"`
}

// DatastoreResponse carries a debug datastore dump.
type DatastoreResponse struct {
	Entries []DatastoreEntry `json:"entries"`
}

// NsRegisteredResponse answers NsRegister.
type NsRegisteredResponse struct {
	NsRegisterInfo
}

// SubscribersResponse carries subscription ledger entries.
type SubscribersResponse struct {
	Subscribers []domain.SubscriptionEntry `json:"subscribers"`
}

// Unrecognised is returned for a request kind the daemon does not handle.
type Unrecognised struct {
	Request string `json:"request,omitempty"`
}

func (NoneResponse) Kind() string         { return KindNone }
func (StatusResponse) Kind() string       { return KindStatusInfo }
func (ConnectedResponse) Kind() string    { return KindConnected }
func (PeersResponse) Kind() string        { return KindPeers }
func (CreatedResponse) Kind() string      { return KindCreated }
func (ServicesResponse) Kind() string     { return KindServices }
func (RegisteredResponse) Kind() string   { return KindRegistered }
func (LocatedResponse) Kind() string      { return KindLocated }
func (SubscribedResponse) Kind() string   { return KindSubscribed }
func (PublishedResponse) Kind() string    { return KindPublished }
func (DataResponse) Kind() string         { return KindData }
func (DatastoreResponse) Kind() string    { return KindDatastore }
func (NsRegisteredResponse) Kind() string { return KindNsRegistered }
func (SubscribersResponse) Kind() string  { return KindSubscribers }
func (Unrecognised) Kind() string         { return KindUnrecognised }
func (Error) Kind() string                { return KindError }

func (NoneResponse) isResponse()         {}
func (StatusResponse) isResponse()       {}
func (ConnectedResponse) isResponse()    {}
func (PeersResponse) isResponse()        {}
func (CreatedResponse) isResponse()      {}
func (ServicesResponse) isResponse()     {}
func (RegisteredResponse) isResponse()   {}
func (LocatedResponse) isResponse()      {}
func (SubscribedResponse) isResponse()   {}
func (PublishedResponse) isResponse()    {}
func (DataResponse) isResponse()         {}
func (DatastoreResponse) isResponse()    {}
func (NsRegisteredResponse) isResponse() {}
func (SubscribersResponse) isResponse()  {}
func (Unrecognised) isResponse()         {}
func (Error) isResponse()                {}

var responseKinds = indexKinds([]ResponseKind{
	NoneResponse{}, StatusResponse{}, ConnectedResponse{}, PeersResponse{},
	CreatedResponse{}, ServicesResponse{}, RegisteredResponse{}, LocatedResponse{},
	SubscribedResponse{}, PublishedResponse{}, DataResponse{}, DatastoreResponse{},
	NsRegisteredResponse{}, SubscribersResponse{}, Unrecognised{}, Error{},
})

func decodeResponseKind(name string, body json.RawMessage) (ResponseKind, error) {
	t, ok := responseKinds[name]
	if !ok {
		return nil, &UnknownKindError{Name: name}
	}
	v, err := decodeInto(t, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, name, err)
	}
	return v.(ResponseKind), nil
}
