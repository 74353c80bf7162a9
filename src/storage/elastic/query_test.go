package elastic

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// ownerTerm digs the owner filter out of a query body and reports whether it
// targets the expected owner.
func assertOwnerFiltered(t *testing.T, body map[string]interface{}, ownerID int64) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal query: %v", err)
	}
	if !strings.Contains(string(raw), fmt.Sprintf(`"metadata.doc_owner":%d`, ownerID)) {
		t.Errorf("query has no filter for owner %d: %s", ownerID, raw)
	}
}

func TestIndexMapping(t *testing.T) {
	body := indexMapping(1024)

	props := body["mappings"].(map[string]interface{})["properties"].(map[string]interface{})

	vector := props["vector"].(map[string]interface{})
	if vector["dims"] != 1024 {
		t.Errorf("vector dims = %v, want 1024", vector["dims"])
	}
	if vector["similarity"] != "cosine" {
		t.Errorf("vector similarity = %v, want cosine", vector["similarity"])
	}

	meta := props["metadata"].(map[string]interface{})["properties"].(map[string]interface{})
	for _, field := range []string{"doc_owner", "doc_id", "file_name", "page_number"} {
		if _, ok := meta[field]; !ok {
			t.Errorf("metadata mapping is missing field %q", field)
		}
	}
}

func TestLexicalQuery(t *testing.T) {
	body := lexicalQuery(42, "market growth")
	assertOwnerFiltered(t, body, 42)

	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), `"market growth"`) {
		t.Errorf("lexical query does not carry the query text: %s", raw)
	}
}

func TestVectorQuery(t *testing.T) {
	body := vectorQuery(42, []float32{0.1, 0.2})
	assertOwnerFiltered(t, body, 42)

	script := body["query"].(map[string]interface{})["script_score"].(map[string]interface{})["script"].(map[string]interface{})
	if !strings.Contains(script["source"].(string), "cosineSimilarity") {
		t.Errorf("vector query script = %v, want cosineSimilarity", script["source"])
	}
}

func TestDeleteQuery(t *testing.T) {
	body := deleteQuery(42, "doc-1")
	assertOwnerFiltered(t, body, 42)

	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), `"doc-1"`) {
		t.Errorf("delete query does not carry the document id: %s", raw)
	}
}

func TestOwnerQuery(t *testing.T) {
	assertOwnerFiltered(t, ownerQuery(42), 42)
}
