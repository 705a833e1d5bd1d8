package kb

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// keywordDoc is the indexed form of a document.
type keywordDoc struct {
	Content string `json:"content"`
}

// keywordIndex is an in-memory bleve index over document content.
type keywordIndex struct {
	index bleve.Index
}

func newKeywordIndex() (*keywordIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// standard analyzer: lower-case and tokenize without stemming, which keeps
	// Turkish words intact.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &keywordIndex{index: index}, nil
}

func (k *keywordIndex) Index(id, content string) error {
	return k.index.Index(id, keywordDoc{Content: content})
}

func (k *keywordIndex) Delete(id string) error {
	return k.index.Delete(id)
}

// Search runs a match query and returns each hit's score divided by the best
// score, so the top hit is 1.
func (k *keywordIndex) Search(query string, limit int) (map[string]float64, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	maxScore := 0.0
	for _, hit := range res.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		if maxScore > 0 {
			out[hit.ID] = hit.Score / maxScore
		} else {
			out[hit.ID] = 0
		}
	}
	return out, nil
}

func (k *keywordIndex) Close() error {
	return k.index.Close()
}
