package eventsourcing

import (
	"fmt"
	"reflect"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// RootCollectionName is the name of the collection (or key prefix) holding
// all documents of one read model type.
type RootCollectionName string

func (n RootCollectionName) String() string {
	return string(n)
}

// Validate rejects names MongoDB refuses to create collections for.
func (n RootCollectionName) Validate() error {
	switch {
	case n == "":
		return fmt.Errorf("%w: empty name", ErrInvalidCollectionName)
	case strings.ContainsAny(string(n), "$\x00"):
		return fmt.Errorf("%w: %q contains '$' or NUL", ErrInvalidCollectionName, string(n))
	case strings.HasPrefix(string(n), "system."):
		return fmt.Errorf("%w: %q uses the reserved system. prefix", ErrInvalidCollectionName, string(n))
	}
	return nil
}

// ReadModelDescription describes where a read model type is stored.
type ReadModelDescription struct {
	RootCollectionName RootCollectionName
}

// CollectionNamer lets a read model choose its own collection name. It is
// called on a zero value, so it must not depend on the model's fields.
type CollectionNamer interface {
	CollectionName() string
}

// DescriptionProvider resolves the description of a read model type.
type DescriptionProvider interface {
	ReadModelDescription(readModelType reflect.Type) (ReadModelDescription, error)
}

// DescriptionFor resolves the description of T through p.
func DescriptionFor[T any](p DescriptionProvider) (ReadModelDescription, error) {
	return p.ReadModelDescription(reflect.TypeFor[T]())
}

type descriptionProvider struct {
	cache *gocache.Cache
}

// NewDescriptionProvider returns the default provider. A type implementing
// CollectionNamer (on the value or the pointer) names its own collection;
// any other type is stored in "ReadModel-<Name>", where Name is the type name
// without a trailing "ReadModel". Descriptions are computed once per type.
func NewDescriptionProvider() DescriptionProvider {
	return &descriptionProvider{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (p *descriptionProvider) ReadModelDescription(rt reflect.Type) (ReadModelDescription, error) {
	if rt == nil {
		return ReadModelDescription{}, fmt.Errorf("%w: nil read model type", ErrInvalidCollectionName)
	}

	key := rt.PkgPath() + "." + rt.String()
	if v, ok := p.cache.Get(key); ok {
		return v.(ReadModelDescription), nil
	}

	name := RootCollectionName(collectionNameFor(rt))
	if err := name.Validate(); err != nil {
		return ReadModelDescription{}, fmt.Errorf("describe read model %s: %w", rt, err)
	}

	desc := ReadModelDescription{RootCollectionName: name}
	p.cache.Set(key, desc, gocache.NoExpiration)
	return desc, nil
}

func collectionNameFor(rt reflect.Type) string {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	if namer, ok := reflect.New(rt).Interface().(CollectionNamer); ok {
		return namer.CollectionName()
	}
	if namer, ok := reflect.Zero(rt).Interface().(CollectionNamer); ok {
		return namer.CollectionName()
	}

	name := rt.Name()
	if trimmed := strings.TrimSuffix(name, "ReadModel"); trimmed != "" {
		name = trimmed
	}
	return "ReadModel-" + name
}

type staticDescriptionProvider struct {
	desc ReadModelDescription
}

// NewStaticDescriptionProvider returns a provider that maps every type to the
// collection name.
func NewStaticDescriptionProvider(name string) DescriptionProvider {
	return staticDescriptionProvider{desc: ReadModelDescription{RootCollectionName: RootCollectionName(name)}}
}

func (p staticDescriptionProvider) ReadModelDescription(reflect.Type) (ReadModelDescription, error) {
	if err := p.desc.RootCollectionName.Validate(); err != nil {
		return ReadModelDescription{}, err
	}
	return p.desc, nil
}
