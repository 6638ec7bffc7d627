package postgres

import "testing"

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"placeholders kept", "SELECT * FROM users WHERE id = $1", "SELECT * FROM users WHERE id = $1"},
		{"string literal", "SELECT * FROM users WHERE email = 'a@b.c'", "SELECT * FROM users WHERE email = '?'"},
		{"escaped quote", "UPDATE t SET name = 'O''Brien' WHERE id = $2", "UPDATE t SET name = '?' WHERE id = $2"},
		{"numeric literal", "SELECT * FROM t LIMIT 10", "SELECT * FROM t LIMIT ?"},
		{"decimal literal", "SELECT 1.50 + amount FROM t", "SELECT ? + amount FROM t"},
		{"identifier digits kept", "SELECT t1.id FROM ledger_entries t1", "SELECT t1.id FROM ledger_entries t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeQuery(tt.in); got != tt.want {
				t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeQuery_Truncates(t *testing.T) {
	long := "SELECT "
	for len(long) < 400 {
		long += "column_name, "
	}

	got := sanitizeQuery(long)
	if len(got) != 259 {
		t.Errorf("expected truncated length 259, got %d", len(got))
	}
}

func TestExtractSQLVerb(t *testing.T) {
	tests := map[string]string{
		"select 1":                      "SELECT",
		"  INSERT INTO t VALUES ($1)":   "INSERT",
		"\n\t\tUPDATE connections\nSET": "UPDATE",
		"COMMIT":                        "COMMIT",
	}

	for in, want := range tests {
		if got := extractSQLVerb(in); got != want {
			t.Errorf("extractSQLVerb(%q) = %q, want %q", in, got, want)
		}
	}
}
