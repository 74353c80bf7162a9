// Package weaviate implements the fragment store on Weaviate, as the
// construction-time alternative to Elasticsearch. Collections map to classes
// holding fragments with their embeddings.
package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"knowbot/src/core/knowledge"
	"knowbot/src/infrastructure/log"
)

// DefaultPageSize is how many objects one owner-scan page pulls.
const DefaultPageSize = 1000

var fragmentFields = []graphql.Field{
	{Name: "text"},
	{Name: "ownerId"},
	{Name: "documentId"},
	{Name: "fileName"},
	{Name: "pageNumber"},
}

// SDK encapsulates all Weaviate operations on fragment classes.
type SDK struct {
	client   *weaviate.Client
	pageSize int
}

// NewSDK creates a new instance of SDK.
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client:   client,
		pageSize: DefaultPageSize,
	}
}

// className maps a collection name to a GraphQL-legal class name.
func className(collection string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, collection)
	return "Fragment_" + cleaned
}

// EnsureCollection creates the fragment class. Returns false with a nil
// error when the class already exists.
func (w *SDK) EnsureCollection(ctx context.Context, name string) (bool, error) {
	class := className(name)

	exists, err := w.classExists(ctx, class)
	if err != nil {
		return false, fmt.Errorf("failed to check if class exists: %w", err)
	}
	if exists {
		log.Info("class already exists", "class", class)
		return false, nil
	}

	properties := []*models.Property{
		{Name: "text", DataType: []string{"text"}},
		{Name: "ownerId", DataType: []string{"int"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "fileName", DataType: []string{"string"}},
		{Name: "pageNumber", DataType: []string{"int"}},
	}

	err = w.client.Schema().ClassCreator().WithClass(&models.Class{
		Class:      class,
		Properties: properties,
		Vectorizer: "none",
	}).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to create class: %w", err)
	}

	log.Info("class created", "class", class)
	return true, nil
}

// DropCollection deletes the fragment class. Absence is reported as
// DropNotFound rather than an error.
func (w *SDK) DropCollection(ctx context.Context, name string) (knowledge.DropResult, error) {
	class := className(name)

	exists, err := w.classExists(ctx, class)
	if err != nil {
		return knowledge.DropUnknown, fmt.Errorf("failed to check if class exists: %w", err)
	}
	if !exists {
		return knowledge.DropNotFound, nil
	}

	if err := w.client.Schema().ClassDeleter().WithClassName(class).Do(ctx); err != nil {
		return knowledge.DropUnknown, fmt.Errorf("failed to delete class: %w", err)
	}
	return knowledge.Dropped, nil
}

// classExists checks if a class exists in the schema.
func (w *SDK) classExists(ctx context.Context, class string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %w", err)
	}

	for _, c := range schema.Classes {
		if c.Class == class {
			return true, nil
		}
	}

	return false, nil
}

// AddFragments batch-adds one page's fragments with their vectors.
func (w *SDK) AddFragments(ctx context.Context, name string, fragments []knowledge.IndexedFragment) error {
	if len(fragments) == 0 {
		return nil
	}
	class := className(name)

	objs := make([]*models.Object, len(fragments))
	for i, f := range fragments {
		objs[i] = &models.Object{
			Class:      class,
			Vector:     f.Vector,
			Properties: fragmentProperties(f.Fragment),
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add fragments: %w", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}

	return nil
}

// FragmentsByOwner pages through every object of one owner until an empty
// page is returned.
func (w *SDK) FragmentsByOwner(ctx context.Context, name string, ownerID int64) ([]knowledge.Fragment, error) {
	class := className(name)

	var all []knowledge.Fragment
	for offset := 0; ; offset += w.pageSize {
		result, err := w.client.GraphQL().Get().
			WithClassName(class).
			WithFields(fragmentFields...).
			WithWhere(ownerWhere(ownerID)).
			WithLimit(w.pageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan owner fragments: %w", err)
		}

		page := parseFragments(result, class)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}

	return all, nil
}

// DeleteByDocument batch-deletes all fragments matching the owner and
// document.
func (w *SDK) DeleteByDocument(ctx context.Context, name string, ownerID int64, documentID string) error {
	class := className(name)

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			ownerWhere(ownerID),
			filters.Where().
				WithPath([]string{"documentId"}).
				WithOperator(filters.Equal).
				WithValueString(documentID),
		})

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(class).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch delete fragments: %w", err)
	}

	return nil
}

// SearchLexical performs a BM25 query over fragment text, filtered to the
// owner.
func (w *SDK) SearchLexical(ctx context.Context, name string, ownerID int64, query string, limit int) ([]knowledge.Hit, error) {
	class := className(name)

	bm25 := w.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("text")

	fields := append(append([]graphql.Field{}, fragmentFields...),
		graphql.Field{Name: "_additional { score }"})

	result, err := w.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithBM25(bm25).
		WithWhere(ownerWhere(ownerID)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run bm25 query: %w", err)
	}

	return parseHits(result, class), nil
}

// SearchVector performs vector similarity search, filtered to the owner.
func (w *SDK) SearchVector(ctx context.Context, name string, ownerID int64, vector []float32, limit int) ([]knowledge.Hit, error) {
	class := className(name)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := append(append([]graphql.Field{}, fragmentFields...),
		graphql.Field{Name: "_additional { distance }"})

	result, err := w.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(ownerWhere(ownerID)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector query: %w", err)
	}

	return parseHits(result, class), nil
}

func ownerWhere(ownerID int64) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"ownerId"}).
		WithOperator(filters.Equal).
		WithValueInt(ownerID)
}

func fragmentProperties(f knowledge.Fragment) map[string]interface{} {
	return map[string]interface{}{
		"text":       f.Text,
		"ownerId":    f.OwnerID,
		"documentId": f.DocumentID,
		"fileName":   f.FileName,
		"pageNumber": f.PageNumber,
	}
}

func parseFragments(result *models.GraphQLResponse, class string) []knowledge.Fragment {
	var fragments []knowledge.Fragment
	for _, obj := range classObjects(result, class) {
		fragments = append(fragments, objectFragment(obj))
	}
	return fragments
}

func parseHits(result *models.GraphQLResponse, class string) []knowledge.Hit {
	var hits []knowledge.Hit
	for _, obj := range classObjects(result, class) {
		hits = append(hits, knowledge.Hit{
			Fragment: objectFragment(obj),
			Score:    objectScore(obj),
		})
	}
	return hits
}

func classObjects(result *models.GraphQLResponse, class string) []map[string]interface{} {
	var objects []map[string]interface{}
	if data, ok := result.Data["Get"].(map[string]interface{}); ok {
		if raw, ok := data[class].([]interface{}); ok {
			for _, obj := range raw {
				if objMap, ok := obj.(map[string]interface{}); ok {
					objects = append(objects, objMap)
				}
			}
		}
	}
	return objects
}

func objectFragment(obj map[string]interface{}) knowledge.Fragment {
	f := knowledge.Fragment{}
	if v, ok := obj["text"].(string); ok {
		f.Text = v
	}
	if v, ok := obj["ownerId"].(float64); ok {
		f.OwnerID = int64(v)
	}
	if v, ok := obj["documentId"].(string); ok {
		f.DocumentID = v
	}
	if v, ok := obj["fileName"].(string); ok {
		f.FileName = v
	}
	if v, ok := obj["pageNumber"].(float64); ok {
		f.PageNumber = int(v)
	}
	return f
}

// objectScore reads whichever relevance value the query produced. BM25
// returns score as a string, nearVector a distance float.
func objectScore(obj map[string]interface{}) float64 {
	additional, ok := obj["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	if raw, ok := additional["score"].(string); ok {
		if score, err := strconv.ParseFloat(raw, 64); err == nil {
			return score
		}
	}
	if distance, ok := additional["distance"].(float64); ok {
		return distance
	}
	return 0
}
