package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/pflag"
)

// idValue is a base58 peer or service id.
type idValue struct {
	id  *domain.ID
	set bool
}

func (v *idValue) String() string {
	if !v.set {
		return ""
	}
	return v.id.String()
}

func (v *idValue) Set(s string) error {
	id, err := domain.ParseID(s)
	if err != nil {
		return err
	}
	*v.id = id
	v.set = true
	return nil
}

func (v *idValue) Type() string { return "id" }

// identifierFlags selects a record by --id or --index.
type identifierFlags struct {
	id    domain.ID
	idSet idValue
	index int
	noun  string
}

// addIdentifierFlags registers --id/-i and --index/-n on fs.
func addIdentifierFlags(fs *pflag.FlagSet, noun string) *identifierFlags {
	f := &identifierFlags{noun: noun}
	f.idSet.id = &f.id
	fs.VarP(&f.idSet, "id", "i", noun+" id")
	fs.IntVarP(&f.index, "index", "n", -1, noun+" index")
	return f
}

// Identifier returns the selector. With neither flag set the identifier is
// empty and the daemon answers invalid_identifier.
func (f *identifierFlags) Identifier() domain.Identifier {
	var ident domain.Identifier
	if f.idSet.set {
		id := f.id
		ident.ID = &id
	}
	if f.index >= 0 {
		index := f.index
		ident.Index = &index
	}
	return ident
}

// Validate rejects a missing selector before a request is sent.
func (f *identifierFlags) Validate() error {
	if f.Identifier().IsEmpty() {
		return fmt.Errorf("%w: pass --id or --index to select a %s", domain.ErrInvalidIdentifier, f.noun)
	}
	return nil
}

// addressesValue collects repeated or comma separated addresses.
type addressesValue struct {
	addrs *[]domain.Address
}

func (v *addressesValue) String() string {
	if v.addrs == nil {
		return ""
	}
	s := make([]string, len(*v.addrs))
	for i, a := range *v.addrs {
		s[i] = string(a)
	}
	return strings.Join(s, ",")
}

func (v *addressesValue) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		a, err := domain.ParseAddress(part)
		if err != nil {
			return err
		}
		*v.addrs = append(*v.addrs, a)
	}
	return nil
}

func (v *addressesValue) Type() string { return "addresses" }

// metadataValue collects repeated key:value pairs.
type metadataValue struct {
	entries *[]rpc.MetadataEntry
}

func (v *metadataValue) String() string {
	if v.entries == nil {
		return ""
	}
	s := make([]string, len(*v.entries))
	for i, e := range *v.entries {
		s[i] = e.Key + ":" + e.Value
	}
	return strings.Join(s, ",")
}

func (v *metadataValue) Set(s string) error {
	e, err := rpc.ParseKeyValue(s)
	if err != nil {
		return err
	}
	*v.entries = append(*v.entries, e)
	return nil
}

func (v *metadataValue) Type() string { return "key:value" }

// secretKeyValue is a base58 symmetric key.
type secretKeyValue struct {
	key **domain.SecretKey
}

func (v *secretKeyValue) String() string {
	if v.key == nil || *v.key == nil {
		return ""
	}
	return (*v.key).String()
}

func (v *secretKeyValue) Set(s string) error {
	k, err := domain.ParseSecretKey(s)
	if err != nil {
		return err
	}
	*v.key = &k
	return nil
}

func (v *secretKeyValue) Type() string { return "key" }

// signatureValue is a base58 page signature.
type signatureValue struct {
	sig *domain.Signature
}

func (v *signatureValue) String() string {
	if v.sig == nil || v.sig.IsZero() {
		return ""
	}
	return v.sig.String()
}

func (v *signatureValue) Set(s string) error {
	sig, err := domain.ParseSignature(s)
	if err != nil {
		return err
	}
	*v.sig = sig
	return nil
}

func (v *signatureValue) Type() string { return "signature" }

// hashValue is a single base58 name hash.
type hashValue struct {
	hash *domain.CryptoHash
	set  bool
}

func (v *hashValue) String() string {
	if !v.set {
		return ""
	}
	return v.hash.String()
}

func (v *hashValue) Set(s string) error {
	h, err := domain.ParseCryptoHash(s)
	if err != nil {
		return err
	}
	*v.hash = h
	v.set = true
	return nil
}

func (v *hashValue) Type() string { return "hash" }

// hashesValue collects repeated base58 name hashes.
type hashesValue struct {
	hashes *[]domain.CryptoHash
}

func (v *hashesValue) String() string {
	if v.hashes == nil {
		return ""
	}
	s := make([]string, len(*v.hashes))
	for i, h := range *v.hashes {
		s[i] = h.String()
	}
	return strings.Join(s, ",")
}

func (v *hashesValue) Set(s string) error {
	h, err := domain.ParseCryptoHash(s)
	if err != nil {
		return err
	}
	*v.hashes = append(*v.hashes, h)
	return nil
}

func (v *hashesValue) Type() string { return "hash" }

// durationValue accepts "10s", "1m30s" or bare seconds.
type durationValue struct {
	d **rpc.Duration
}

func (v *durationValue) String() string {
	if v.d == nil || *v.d == nil {
		return ""
	}
	return (*v.d).String()
}

func (v *durationValue) Set(s string) error {
	d, err := rpc.ParseDuration(s)
	if err != nil {
		return err
	}
	*v.d = &d
	return nil
}

func (v *durationValue) Type() string { return "duration" }

// timeValue accepts RFC3339, a date, or a duration ago such as "2h".
type timeValue struct {
	t   **time.Time
	now func() time.Time
}

var timeLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

func (v *timeValue) String() string {
	if v.t == nil || *v.t == nil {
		return ""
	}
	return (*v.t).Format(time.RFC3339)
}

func (v *timeValue) Set(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*v.t = &t
			return nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		now := time.Now
		if v.now != nil {
			now = v.now
		}
		t := now().Add(-d)
		*v.t = &t
		return nil
	}
	return fmt.Errorf("%w: time %q", domain.ErrMalformed, s)
}

func (v *timeValue) Type() string { return "time" }

// enumValue restricts a string flag to a fixed set.
type enumValue struct {
	value   *string
	allowed []string
}

func (v *enumValue) String() string {
	if v.value == nil {
		return ""
	}
	return *v.value
}

func (v *enumValue) Set(s string) error {
	for _, a := range v.allowed {
		if s == a {
			*v.value = s
			return nil
		}
	}
	return fmt.Errorf("%w: %q, want one of %s", domain.ErrMalformed, s, strings.Join(v.allowed, ", "))
}

func (v *enumValue) Type() string { return "string" }

// pageFlags registers --count and --offset.
type pageFlags struct {
	count  int
	offset int
}

func addPageFlags(fs *pflag.FlagSet) *pageFlags {
	p := &pageFlags{}
	fs.IntVar(&p.count, "count", -1, "maximum number of items")
	fs.IntVar(&p.offset, "offset", -1, "number of items to skip")
	return p
}

// Bounds returns the bounds. Unset flags stay unbounded.
func (p *pageFlags) Bounds() domain.PageBounds {
	var b domain.PageBounds
	if p.count >= 0 {
		c := p.count
		b.Count = &c
	}
	if p.offset >= 0 {
		o := p.offset
		b.Offset = &o
	}
	return b
}

// listFlags registers the shared listing filters.
type listFlags struct {
	page   *pageFlags
	appID  int
	filter string
}

func addListFlags(fs *pflag.FlagSet) *listFlags {
	l := &listFlags{page: addPageFlags(fs)}
	fs.IntVar(&l.appID, "application-id", -1, "only list records of this application id")
	fs.StringVar(&l.filter, "filter", "", "CEL expression selecting records")
	return l
}

// Options returns the listing options.
func (l *listFlags) Options() (rpc.ListOptions, error) {
	opts := rpc.ListOptions{Page: l.page.Bounds(), Filter: l.filter}
	if l.appID >= 0 {
		if l.appID > 0xffff {
			return opts, fmt.Errorf("%w: application id %d", domain.ErrMalformed, l.appID)
		}
		id := uint16(l.appID)
		opts.ApplicationID = &id
	}
	return opts, nil
}

func parseUint16(name, s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", domain.ErrMalformed, name, s)
	}
	return uint16(n), nil
}
