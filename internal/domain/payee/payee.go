// Package payee holds the ordered selection of GitHub users and repos
// a sender wants to pay.
//
// Lists are values: every operation returns a new List and never mutates
// the receiver, so callers can keep old lists for undo.
package payee

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Kind discriminates payees. It is fixed when an Item is created.
type Kind int

// Payee kinds.
const (
	KindUser Kind = iota + 1
	KindRepo
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindRepo:
		return "repo"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindUser && k != KindRepo {
		return nil, ErrUnknownKind
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts "user"/"u" and "repo"/"r".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "u":
		return KindUser, nil
	case "repo", "r":
		return KindRepo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Item is one selected payee.
type Item struct {
	Kind   Kind
	ID     string
	User   *model.UserProfile
	Repo   *model.RepoProfile
	Amount decimal.Decimal
}

// NewUserItem creates a zero-amount payee for a GitHub user.
func NewUserItem(u model.UserProfile) Item {
	return Item{Kind: KindUser, ID: strconv.FormatInt(u.ID, 10), User: &u}
}

// NewRepoItem creates a zero-amount payee for a GitHub repository.
func NewRepoItem(r model.RepoProfile) Item {
	return Item{Kind: KindRepo, ID: strconv.FormatInt(r.ID, 10), Repo: &r}
}

// Label is the display name: login for users, full name for repos.
func (i Item) Label() string {
	switch {
	case i.Kind == KindUser && i.User != nil:
		return i.User.Login
	case i.Kind == KindRepo && i.Repo != nil:
		return i.Repo.FullName
	}
	return i.ID
}

// AvatarURL returns the user avatar or the repo owner's avatar.
func (i Item) AvatarURL() string {
	switch {
	case i.User != nil:
		return i.User.AvatarURL
	case i.Repo != nil:
		return i.Repo.OwnerAvatarURL
	}
	return ""
}

// Key identifies the item within a List, e.g. "u:42" or "r:42". User and
// repo ids share a numeric range, so the kind is part of the key.
func (i Item) Key() string {
	return Key(i.Kind, i.ID)
}

// Key builds the List key for a payee of kind k with the given id.
func Key(k Kind, id string) string {
	prefix := "u"
	if k == KindRepo {
		prefix = "r"
	}
	return prefix + ":" + id
}

// Token encodes the item for the manual checkout form, e.g. "u_42_10.00".
func (i Item) Token() string {
	prefix := "u"
	if i.Kind == KindRepo {
		prefix = "r"
	}
	return prefix + "_" + i.ID + "_" + i.Amount.StringFixed(2)
}

// ParseAmount parses a user-entered dollar amount. Blank input is zero.
// The result is rounded to cents.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return normalize(d)
}

func normalize(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d.Round(2), nil
}

// List is an ordered selection with unique keys.
type List struct {
	items []Item
}

// NewList builds a list from items, keeping the first occurrence of each key.
func NewList(items ...Item) List {
	var l List
	for _, it := range items {
		l = l.Add(it)
	}
	return l
}

// Items returns a copy of the entries in insertion order.
func (l List) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of payees.
func (l List) Len() int { return len(l.items) }

// Contains reports whether the payee with key is selected.
func (l List) Contains(key string) bool {
	return l.index(key) >= 0
}

// Get returns the entry for key.
func (l List) Get(key string) (Item, bool) {
	if i := l.index(key); i >= 0 {
		return l.items[i], true
	}
	return Item{}, false
}

func (l List) index(key string) int {
	for i := range l.items {
		if l.items[i].Key() == key {
			return i
		}
	}
	return -1
}

// Add appends item. Adding a key that is already present returns l unchanged.
func (l List) Add(item Item) List {
	if l.Contains(item.Key()) {
		return l
	}
	if a, err := normalize(item.Amount); err == nil {
		item.Amount = a
	} else {
		item.Amount = decimal.Zero
	}
	out := make([]Item, len(l.items), len(l.items)+1)
	copy(out, l.items)
	return List{items: append(out, item)}
}

// Remove drops the entry with key, if any.
func (l List) Remove(key string) List {
	out := make([]Item, 0, len(l.items))
	for _, it := range l.items {
		if it.Key() != key {
			out = append(out, it)
		}
	}
	return List{items: out}
}

// Toggle removes item when selected and appends it otherwise.
// The boolean reports whether the item is selected afterwards.
func (l List) Toggle(item Item) (List, bool) {
	if l.Contains(item.Key()) {
		return l.Remove(item.Key()), false
	}
	return l.Add(item), true
}

// UpdateAmount replaces the amount of key, keeping its position and other fields.
func (l List) UpdateAmount(key string, amount decimal.Decimal) (List, error) {
	i := l.index(key)
	if i < 0 {
		return l, fmt.Errorf("%w: %s", ErrNotSelected, key)
	}
	a, err := normalize(amount)
	if err != nil {
		return l, err
	}
	out := l.Items()
	out[i].Amount = a
	return List{items: out}, nil
}

// Total sums all amounts.
func (l List) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range l.items {
		total = total.Add(it.Amount)
	}
	return total
}

// CanCheckout reports whether the list is non-empty with a positive total.
func (l List) CanCheckout() bool {
	return len(l.items) > 0 && l.Total().IsPositive()
}
