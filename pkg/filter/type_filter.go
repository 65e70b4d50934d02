// Package filter provides unified type name classification for allocation
// analysis. It consolidates the rules that decide whether an allocation's
// type is a language primitive, a standard collection, a smart pointer, a
// runtime internal, or application code.
package filter

import (
	"strings"
	"sync"
)

// TypeCategory represents the category of an allocated type.
type TypeCategory int

const (
	// CategoryUnknown indicates the type could not be classified, including
	// allocations with no recorded type name.
	CategoryUnknown TypeCategory = iota
	// CategoryPrimitive indicates primitive types and their slices.
	CategoryPrimitive
	// CategoryCollection indicates standard library collections.
	CategoryCollection
	// CategorySmartPointer indicates reference-counted and owning pointers.
	CategorySmartPointer
	// CategoryRuntime indicates language runtime and allocator internals.
	CategoryRuntime
	// CategoryApplication indicates user-defined application types.
	CategoryApplication
)

// String returns the string representation of the category.
func (c TypeCategory) String() string {
	switch c {
	case CategoryPrimitive:
		return "primitive"
	case CategoryCollection:
		return "collection"
	case CategorySmartPointer:
		return "smart_pointer"
	case CategoryRuntime:
		return "runtime"
	case CategoryApplication:
		return "application"
	default:
		return "unknown"
	}
}

// TypeFilter classifies allocation type names.
// It is safe for concurrent use.
type TypeFilter struct {
	mu sync.RWMutex

	primitives map[string]bool

	collectionNames    map[string]bool
	smartPointerNames  map[string]bool
	runtimePrefixes    []string
	collectionPrefixes []string

	// Custom application crate/module prefixes. A name matching one of
	// these is always classified as application code.
	applicationPrefixes []string

	// Cache for frequently queried types
	categoryCache     map[string]TypeCategory
	categoryCacheSize int
}

// TypeFilterOption configures a TypeFilter.
type TypeFilterOption func(*TypeFilter)

// WithApplicationPrefixes registers module prefixes that identify
// application code, for example "myapp::".
func WithApplicationPrefixes(prefixes ...string) TypeFilterOption {
	return func(f *TypeFilter) {
		f.applicationPrefixes = append(f.applicationPrefixes, prefixes...)
	}
}

// NewTypeFilter creates a TypeFilter with default rules.
func NewTypeFilter(opts ...TypeFilterOption) *TypeFilter {
	f := &TypeFilter{
		categoryCache:     make(map[string]TypeCategory),
		categoryCacheSize: 10000,
	}
	f.initDefaults()
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// initDefaults initializes default classification rules.
func (f *TypeFilter) initDefaults() {
	f.primitives = map[string]bool{
		"u8": true, "u16": true, "u32": true, "u64": true, "usize": true,
		"i8": true, "i16": true, "i32": true, "i64": true, "isize": true,
		"f32": true, "f64": true, "bool": true, "char": true,
		"str": true, "&str": true,
		"[u8]": true, "[i32]": true, "[u64]": true, "[f64]": true,
	}

	f.collectionNames = map[string]bool{
		"Vec": true, "VecDeque": true, "String": true,
		"HashMap": true, "HashSet": true,
		"BTreeMap": true, "BTreeSet": true,
		"BinaryHeap": true, "LinkedList": true,
	}

	f.smartPointerNames = map[string]bool{
		"Box": true, "Rc": true, "Arc": true,
		"RefCell": true, "Cell": true, "Cow": true,
		"Mutex": true, "RwLock": true, "Weak": true,
	}

	f.runtimePrefixes = []string{
		"core::",
		"alloc::alloc::",
		"alloc::raw_vec::",
		"std::rt::",
		"std::sys::",
		"std::panicking::",
		"std::thread::local::",
	}

	f.collectionPrefixes = []string{
		"alloc::vec::",
		"alloc::string::",
		"alloc::collections::",
		"std::collections::",
	}
}

// AddApplicationPrefix registers an application prefix at runtime.
func (f *TypeFilter) AddApplicationPrefix(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applicationPrefixes = append(f.applicationPrefixes, prefix)
	// Classification rules changed, cached answers may be stale.
	f.categoryCache = make(map[string]TypeCategory)
}

// Categorize classifies a type name. Empty names and the "unknown"
// placeholder report CategoryUnknown.
func (f *TypeFilter) Categorize(typeName string) TypeCategory {
	if !UsableTypeName(typeName) {
		return CategoryUnknown
	}

	f.mu.RLock()
	if cat, ok := f.categoryCache[typeName]; ok {
		f.mu.RUnlock()
		return cat
	}
	f.mu.RUnlock()

	cat := f.categorize(typeName)

	f.mu.Lock()
	if len(f.categoryCache) < f.categoryCacheSize {
		f.categoryCache[typeName] = cat
	}
	f.mu.Unlock()

	return cat
}

func (f *TypeFilter) categorize(typeName string) TypeCategory {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, prefix := range f.applicationPrefixes {
		if strings.HasPrefix(typeName, prefix) {
			return CategoryApplication
		}
	}

	if f.primitives[typeName] {
		return CategoryPrimitive
	}

	base := baseName(typeName)
	if f.smartPointerNames[base] {
		return CategorySmartPointer
	}
	if f.collectionNames[base] {
		return CategoryCollection
	}

	for _, prefix := range f.collectionPrefixes {
		if strings.HasPrefix(typeName, prefix) {
			return CategoryCollection
		}
	}
	for _, prefix := range f.runtimePrefixes {
		if strings.HasPrefix(typeName, prefix) {
			return CategoryRuntime
		}
	}

	// Qualified names outside std/core/alloc are application code.
	if strings.Contains(typeName, "::") {
		root := typeName[:strings.Index(typeName, "::")]
		switch root {
		case "std", "core", "alloc":
			return CategoryRuntime
		}
		return CategoryApplication
	}

	// Bare unqualified names default to application code.
	return CategoryApplication
}

// IsRuntimeInternal reports whether a type belongs to the language runtime
// or allocator internals.
func (f *TypeFilter) IsRuntimeInternal(typeName string) bool {
	return f.Categorize(typeName) == CategoryRuntime
}

// UsableTypeName reports whether a type name carries real information:
// present, non-empty and not the "unknown" placeholder.
func UsableTypeName(name string) bool {
	return name != "" && name != "unknown"
}

// baseName strips module path segments and generic parameters.
func baseName(name string) string {
	if i := strings.IndexByte(name, '<'); i > 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return name
}
