package store

import "fmt"

// Resource names the document namespace used when building Redis keys.
type Resource string

const (
	ResourceSlot    Resource = "slots"
	ResourceAccount Resource = "accounts"
	ResourceTask    Resource = "tasks"
)

// Key builds a fully qualified key: chainsignal:{resource}:{id}
func Key(resource Resource, id string) string {
	return fmt.Sprintf("chainsignal:%s:%s", resource, id)
}

// Prefix builds a scan prefix for a resource namespace.
func Prefix(resource Resource) string {
	return fmt.Sprintf("chainsignal:%s:", resource)
}
