package session

import "testing"

func TestBuildExtensionTableDropsGreetingEcho(t *testing.T) {
	table := buildExtensionTable([]string{
		"mail.example",
		"PIPELINING",
		"SIZE 10485760",
		"auth plain login",
	})

	if len(table) != 3 {
		t.Fatalf("table = %v, want 3 entries", table)
	}
	if !table.Has("pipelining") {
		t.Errorf("Has(\"pipelining\") = false, want true (case-insensitive)")
	}
	if got := table.Params("AUTH"); len(got) != 2 || got[0] != "plain" {
		t.Errorf("Params(AUTH) = %v", got)
	}
}

func TestBuildExtensionTableEmptyLines(t *testing.T) {
	if table := buildExtensionTable(nil); len(table) != 0 {
		t.Errorf("buildExtensionTable(nil) = %v, want empty", table)
	}
	if table := buildExtensionTable([]string{"mail.example"}); len(table) != 0 {
		t.Errorf("buildExtensionTable with only the greeting echo = %v, want empty", table)
	}
}

func TestExtensionTableParamsAbsentKeyword(t *testing.T) {
	table := ExtensionTable{}
	if got := table.Params("STARTTLS"); got != nil {
		t.Errorf("Params on absent keyword = %v, want nil", got)
	}
	if table.Has("STARTTLS") {
		t.Errorf("Has on absent keyword = true, want false")
	}
}
