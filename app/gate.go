package app

// Accept reports whether a delta carrying incoming is newer than the highest
// version already accepted. Equal versions are duplicate deliveries.
func Accept(last, incoming uint64) bool {
	return incoming > last
}
