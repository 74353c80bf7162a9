package elastic

// Query bodies are built as plain maps so tests can assert their shape
// without a live cluster. Every read and delete query carries the owner
// filter; there is no unfiltered variant.

func indexMapping(vectorDims int) map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"text": map[string]interface{}{
					"type": "text",
				},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       vectorDims,
					"index":      true,
					"similarity": "cosine",
				},
				"metadata": map[string]interface{}{
					"properties": map[string]interface{}{
						"doc_owner":   map[string]interface{}{"type": "long"},
						"doc_id":      map[string]interface{}{"type": "keyword"},
						"file_name":   map[string]interface{}{"type": "keyword"},
						"page_number": map[string]interface{}{"type": "integer"},
					},
				},
			},
		},
	}
}

func ownerFilter(ownerID int64) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{
			"metadata.doc_owner": ownerID,
		},
	}
}

func ownerQuery(ownerID int64) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{ownerFilter(ownerID)},
			},
		},
	}
}

func lexicalQuery(ownerID int64, query string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"text": query,
						},
					},
				},
				"filter": []interface{}{ownerFilter(ownerID)},
			},
		},
	}
}

func vectorQuery(ownerID int64, vector []float32) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": []interface{}{ownerFilter(ownerID)},
					},
				},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]interface{}{
						"query_vector": vector,
					},
				},
			},
		},
	}
}

func deleteQuery(ownerID int64, documentID string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"metadata.doc_id": documentID,
						},
					},
					ownerFilter(ownerID),
				},
			},
		},
	}
}
