package locker

const lockSuffix = ":lock"

// MakeKey maps a lock name to the key holding its record in the store.
func MakeKey(name string) string {
	return name + lockSuffix
}
