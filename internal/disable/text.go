// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package disable

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Text is a lockout message. Some callers know the text up front, others
// must defer it until display time because it depends on runtime culture.
type Text interface {
	Resolve(l Localizer) string
}

// Literal is text known at call time.
type Literal string

func (t Literal) Resolve(Localizer) string { return string(t) }

// Deferred produces its text when it is displayed.
type Deferred func() string

func (t Deferred) Resolve(Localizer) string {
	if t == nil {
		return ""
	}
	return t()
}

// Localized references a resource string resolved through a Localizer.
type Localized struct {
	Key  string
	Args []any
}

func (t Localized) Resolve(l Localizer) string {
	if l == nil {
		l = keyLocalizer{}
	}
	return l.Localize(t.Key, t.Args...)
}

// Localizer turns a resource key and its arguments into display text.
type Localizer interface {
	Localize(key string, args ...any) string
}

// keyLocalizer is used when no catalog is configured: the key is the format.
type keyLocalizer struct{}

func (keyLocalizer) Localize(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf(key, args...)
}

// CatalogLocalizer resolves resource keys against an x/text message catalog
// for one display language.
type CatalogLocalizer struct {
	printer *message.Printer
}

// NewCatalogLocalizer builds a localizer for tag from key -> format entries.
func NewCatalogLocalizer(tag language.Tag, entries map[string]string) (*CatalogLocalizer, error) {
	b := catalog.NewBuilder()
	for key, format := range entries {
		if err := b.SetString(tag, key, format); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", key, err)
		}
	}
	return &CatalogLocalizer{printer: message.NewPrinter(tag, message.Catalog(b))}, nil
}

func (c *CatalogLocalizer) Localize(key string, args ...any) string {
	return c.printer.Sprintf(key, args...)
}

func resolve(t Text, l Localizer) string {
	if t == nil {
		return ""
	}
	return t.Resolve(l)
}
