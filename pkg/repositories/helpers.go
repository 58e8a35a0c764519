package repositories

// nullableString converts an empty string to nil for nullable columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return &s
}

// nullableFloat converts a nil pointer through unchanged; used for clarity
// at call sites that mix pointer and value fields.
func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
