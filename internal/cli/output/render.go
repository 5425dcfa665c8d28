package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"dsf/internal/domain"
	"dsf/internal/rpc"
)

// maxBodyCell bounds a cleartext body shown in a table cell.
const maxBodyCell = 48

// Response renders a control-plane response in any output format.
type Response struct {
	Kind rpc.ResponseKind
}

// FromResponse wraps a response kind for the writer.
func FromResponse(kind rpc.ResponseKind) Response {
	return Response{Kind: kind}
}

// Raw implements Quiet.
func (r Response) Raw() any { return r.Kind }

// QuietLines implements Quiet.
func (r Response) QuietLines() []string {
	switch v := r.Kind.(type) {
	case rpc.StatusResponse:
		return []string{v.ID.String()}
	case rpc.ConnectedResponse:
		return []string{v.ID.String()}
	case rpc.PeersResponse:
		lines := make([]string, len(v.Peers))
		for i, p := range v.Peers {
			lines[i] = p.ID.String()
		}
		return lines
	case rpc.CreatedResponse:
		return []string{v.ID.String()}
	case rpc.ServicesResponse:
		lines := make([]string, len(v.Services))
		for i, s := range v.Services {
			lines[i] = s.ID.String()
		}
		return lines
	case rpc.RegisteredResponse:
		return []string{strconv.Itoa(int(v.PageVersion))}
	case rpc.LocatedResponse:
		return []string{v.ID.String()}
	case rpc.SubscribedResponse:
		return []string{strconv.FormatUint(uint64(v.Count), 10)}
	case rpc.PublishedResponse:
		return []string{v.Sig.String()}
	case rpc.DataResponse:
		lines := make([]string, len(v.Data))
		for i, d := range v.Data {
			lines[i] = d.Signature.String()
		}
		return lines
	case rpc.DatastoreResponse:
		lines := make([]string, len(v.Entries))
		for i, e := range v.Entries {
			lines[i] = e.Key
		}
		return lines
	case rpc.NsRegisteredResponse:
		lines := make([]string, len(v.Hashes))
		for i, h := range v.Hashes {
			lines[i] = h.String()
		}
		return lines
	case rpc.SubscribersResponse:
		lines := make([]string, len(v.Subscribers))
		for i, e := range v.Subscribers {
			lines[i] = e.Kind.Key()
		}
		return lines
	}
	return nil
}

// TableData implements Tabular.
func (r Response) TableData() *Table {
	switch v := r.Kind.(type) {
	case rpc.NoneResponse:
		return NewTable("result").Empty("ok")
	case rpc.StatusResponse:
		return NewTable("id", "peers", "services").
			AddRow(v.ID.String(), strconv.Itoa(v.Peers), strconv.Itoa(v.Services))
	case rpc.ConnectedResponse:
		return NewTable("id", "peers").
			AddRow(v.ID.String(), strconv.Itoa(v.Peers))
	case rpc.PeersResponse:
		return peerTable(v.Peers)
	case rpc.CreatedResponse:
		secret := "-"
		if v.SecretKey != nil {
			secret = v.SecretKey.String()
		}
		return NewTable("id", "secret key").AddRow(v.ID.String(), secret)
	case rpc.ServicesResponse:
		return serviceTable(v.Services)
	case rpc.RegisteredResponse:
		replica := "-"
		if v.ReplicaVersion != nil {
			replica = strconv.Itoa(int(*v.ReplicaVersion))
		}
		return NewTable("page version", "replica version", "peers").
			AddRow(strconv.Itoa(int(v.PageVersion)), replica, strconv.Itoa(v.Peers))
	case rpc.LocatedResponse:
		return NewTable("id", "origin", "updated", "page version").
			AddRow(v.ID.String(), yesNo(v.Origin), yesNo(v.Updated), strconv.Itoa(int(v.PageVersion)))
	case rpc.SubscribedResponse:
		return NewTable("replicas").AddRow(strconv.FormatUint(uint64(v.Count), 10))
	case rpc.PublishedResponse:
		return NewTable("index", "signature").
			AddRow(strconv.Itoa(int(v.Index)), v.Sig.String())
	case rpc.DataResponse:
		return dataTable(v.Data)
	case rpc.DatastoreResponse:
		t := NewTable("key", "value").Empty("datastore is empty")
		for _, e := range v.Entries {
			t.AddRow(e.Key, e.Value)
		}
		return t
	case rpc.NsRegisteredResponse:
		hashes := make([]string, len(v.Hashes))
		for i, h := range v.Hashes {
			hashes[i] = h.String()
		}
		return NewTable("ns", "prefix", "name", "hashes").
			AddRow(v.NS.String(), deref(v.Prefix), deref(v.Name), strings.Join(hashes, ","))
	case rpc.SubscribersResponse:
		return subscriberTable(v.Subscribers)
	case rpc.Unrecognised:
		return NewTable("result").Empty(fmt.Sprintf("request %q not recognised by the daemon", v.Request))
	case rpc.Error:
		return NewTable("error").Empty(v.Error())
	}
	return NewTable("result").Empty(fmt.Sprintf("unsupported response %T", r.Kind))
}

func peerTable(peers []domain.PeerInfo) *Table {
	t := NewTable("index", "id", "address", "state", "seen", "sent", "received", "blocked").
		Empty("no peers")
	for _, p := range peers {
		t.AddRow(
			strconv.Itoa(p.Index),
			p.ID.String(),
			p.Address.String(),
			string(p.State.Kind),
			formatTime(p.Seen),
			strconv.FormatUint(p.Sent, 10),
			strconv.FormatUint(p.Received, 10),
			yesNo(p.Blocked),
		)
	}
	return t
}

func serviceTable(services []domain.ServiceInfo) *Table {
	t := NewTable("index", "id", "app", "state", "origin", "subscribers", "replicas", "updated").
		Empty("no services")
	for _, s := range services {
		t.AddRow(
			strconv.Itoa(s.Index),
			s.ID.String(),
			strconv.Itoa(int(s.ApplicationID)),
			string(s.State),
			yesNo(s.Origin),
			strconv.Itoa(s.Subscribers),
			strconv.Itoa(s.Replicas),
			formatTime(s.LastUpdated),
		)
	}
	return t
}

func dataTable(data []domain.DataInfo) *Table {
	t := NewTable("index", "kind", "body", "published", "signature").Empty("no data")
	for _, d := range data {
		t.AddRow(
			strconv.Itoa(int(d.Index)),
			string(d.Kind),
			formatBody(d.Body),
			formatTime(d.Timestamp()),
			d.Signature.String(),
		)
	}
	return t
}

func subscriberTable(entries []domain.SubscriptionEntry) *Table {
	t := NewTable("service", "subscriber", "qos", "updated", "expiry").Empty("no subscribers")
	for _, e := range entries {
		t.AddRow(
			e.ServiceID.String(),
			e.Kind.Key(),
			string(e.QoS),
			formatTime(e.Updated),
			formatTime(e.Expiry),
		)
	}
	return t
}

// formatBody shows printable cleartext and the size of anything else.
func formatBody(b domain.Body) string {
	switch {
	case b.IsEmpty():
		return "-"
	case b.Kind == domain.BodyEncrypted:
		return fmt.Sprintf("<encrypted, %d bytes>", len(b.Data))
	case !printable(b.Data):
		return fmt.Sprintf("<%d bytes>", len(b.Data))
	}
	s := string(b.Data)
	if utf8.RuneCountInString(s) > maxBodyCell {
		s = string([]rune(s)[:maxBodyCell-1]) + "…"
	}
	return s
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && r != ' ' {
			return false
		}
	}
	return true
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
