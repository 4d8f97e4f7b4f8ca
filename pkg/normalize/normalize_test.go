package normalize

import "testing"

func TestNormalize_Categories(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			"convex id",
			"document jd7abc123def456ghi789jkl012mno34 missing",
			"document <convex_id> missing",
		},
		{
			"compound id",
			"lock 1700000000001_9876543210 expired",
			"lock <compound_id> expired",
		},
		{
			"uuid lowercase",
			"user 550e8400-e29b-41d4-a716-446655440000 not found",
			"user <uuid> not found",
		},
		{
			"uuid uppercase",
			"trace 550E8400-E29B-41D4-A716-446655440000",
			"trace <uuid>",
		},
		{
			"object id",
			"row 507f1f77bcf86cd799439011 conflict",
			"row <object_id> conflict",
		},
		{
			"hex literal 0x",
			"pointer 0xdeadbeef42 freed twice",
			"pointer <hex_id> freed twice",
		},
		{
			"hex literal hash",
			"color #FF00FF00 out of gamut",
			"color <hex_id> out of gamut",
		},
		{
			"prefixed underscore",
			"stale session_445566 evicted",
			"stale session_<id> evicted",
		},
		{
			"prefixed dash",
			"order-98765 rejected",
			"order_<id> rejected",
		},
		{
			"prefixed mixed case lowered",
			"Request_1234 timed out",
			"request_<id> timed out",
		},
		{
			"numeric id",
			"account 12345678901 suspended",
			"account <numeric_id> suspended",
		},
		{
			"numeric id bounded by underscore",
			"shard_12345678901 rebalancing",
			"shard_<numeric_id> rebalancing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Normalize(tt.in)
			if got != tt.out {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.out)
			}
		})
	}
}

func TestNormalize_WholeWordOnly(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"embedded digits", "token abc12345678901xyz unchanged"},
		{"short digits", "port 8080 unchanged"},
		{"short hex", "code 0xff unchanged"},
		{"prefix without separator", "userid999 unchanged"},
		{"prefix with short digits", "user_99 unchanged"},
		{"33-char run", "x0123456789abcdef0123456789abcdef0 unchanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ids := Normalize(tt.in)
			if got != tt.in {
				t.Errorf("Normalize(%q) = %q, want input unchanged", tt.in, got)
			}
			if len(ids) != 0 {
				t.Errorf("Expected empty ID map, got %v", ids)
			}
		})
	}
}

func TestNormalize_UUIDProperty(t *testing.T) {
	const raw = "550e8400-e29b-41d4-a716-446655440000"
	got, ids := Normalize("failed to load " + raw + " from cache")

	if got != "failed to load <uuid> from cache" {
		t.Errorf("Unexpected normalized text: %q", got)
	}
	if len(ids) != 1 {
		t.Fatalf("Expected exactly one extracted ID, got %d", len(ids))
	}
	if ids["uuid_1"] != raw {
		t.Errorf("Expected uuid_1 = %q, got %q", raw, ids["uuid_1"])
	}
}

func TestNormalize_PlaceholderIdempotence(t *testing.T) {
	const in = "user_<id> fetched <uuid> via <convex_id> at <numeric_id>"
	got, ids := Normalize(in)
	if got != in {
		t.Errorf("Placeholder-only input changed: %q", got)
	}
	if len(ids) != 0 {
		t.Errorf("Expected empty ID map, got %v", ids)
	}
}

func TestNormalize_SharedCounter(t *testing.T) {
	got, ids := Normalize("Processing order-98765 for session_445566")

	if got != "Processing order_<id> for session_<id>" {
		t.Errorf("Unexpected normalized text: %q", got)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected two extracted IDs, got %v", ids)
	}
	if ids["order_id_1"] != "order-98765" {
		t.Errorf("Expected order_id_1 = 'order-98765', got %q", ids["order_id_1"])
	}
	if ids["session_id_2"] != "session_445566" {
		t.Errorf("Expected session_id_2 = 'session_445566', got %q", ids["session_id_2"])
	}
}

func TestNormalize_CounterSpansCategories(t *testing.T) {
	_, ids := Normalize("550e8400-e29b-41d4-a716-446655440000 then 12345678901")

	if ids["uuid_1"] == "" {
		t.Errorf("Expected uuid_1 entry, got %v", ids)
	}
	if ids["numeric_id_2"] != "12345678901" {
		t.Errorf("Expected numeric_id_2 = '12345678901', got %v", ids)
	}
}

func TestNormalize_OrderingPrecedence(t *testing.T) {
	// a 24-hex token must be claimed by object_id, not by anything later;
	// a compound id must be claimed before the bare numeric pass
	got, ids := Normalize("507f1f77bcf86cd799439011 and 1700000000001_9876543210")

	if got != "<object_id> and <compound_id>" {
		t.Errorf("Unexpected normalized text: %q", got)
	}
	// the compound pass runs before the object-id pass, so it claims the
	// lower counter even though it sits later in the text
	if ids["compound_id_1"] != "1700000000001_9876543210" {
		t.Errorf("Expected compound_id_1 entry, got %v", ids)
	}
	if ids["object_id_2"] != "507f1f77bcf86cd799439011" {
		t.Errorf("Expected object_id_2 entry, got %v", ids)
	}
}

func TestNormalize_AdjacentMatches(t *testing.T) {
	got, ids := Normalize("12345678901 98765432109")
	if got != "<numeric_id> <numeric_id>" {
		t.Errorf("Unexpected normalized text: %q", got)
	}
	if len(ids) != 2 {
		t.Errorf("Expected two entries, got %v", ids)
	}
}

func TestNormalize_EmptyString(t *testing.T) {
	got, ids := Normalize("")
	if got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
	if len(ids) != 0 {
		t.Errorf("Expected empty ID map, got %v", ids)
	}
}
