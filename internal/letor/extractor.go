package letor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/index"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/query"
	"github.com/ricesearch/rice-letor/internal/translation"
)

// Extractor types.
const (
	TypeTFIDF   = "tfidf"
	TypeEmbed   = "embed"
	TypeEmbedHO = "embed_ho"
	TypeModel1  = "model1"
)

// Extractor computes one feature vector per document of a batch.
type Extractor interface {
	// Features returns a vector of FeatureQty values for every id in docIDs.
	Features(ctx context.Context, docIDs []string, fields query.Fields) (map[string]Vector, error)

	// FeatureQty returns the length of every returned vector.
	FeatureQty() int

	// Capabilities returns the resources the extractor needs.
	Capabilities() Capabilities
}

// Capabilities lists what an extractor needs before a run can start.
type Capabilities struct {
	NeedsEmbeddings          bool
	NeedsHighOrderEmbeddings bool
	NeedsTranslationModel    bool
	WantsRankScoreFeatures   bool
}

func (c Capabilities) merge(o Capabilities) Capabilities {
	return Capabilities{
		NeedsEmbeddings:          c.NeedsEmbeddings || o.NeedsEmbeddings,
		NeedsHighOrderEmbeddings: c.NeedsHighOrderEmbeddings || o.NeedsHighOrderEmbeddings,
		NeedsTranslationModel:    c.NeedsTranslationModel || o.NeedsTranslationModel,
		WantsRankScoreFeatures:   c.WantsRankScoreFeatures || o.WantsRankScoreFeatures,
	}
}

// Resources are shared by all extractors of a run.
type Resources struct {
	Index       *index.Store
	Embeddings  *embed.Set
	Translation *translation.Table
}

// CheckCapabilities returns a config error for every need res cannot satisfy.
func CheckCapabilities(caps Capabilities, res Resources) error {
	var missing []string
	if res.Index == nil {
		missing = append(missing, "feature extraction needs the forward index (mem_index)")
	}
	if caps.NeedsEmbeddings && (res.Embeddings == nil || len(res.Embeddings.Regular) == 0) {
		missing = append(missing, "the extractor needs word embeddings (embed_dir, embed_files)")
	}
	if caps.NeedsHighOrderEmbeddings && (res.Embeddings == nil || len(res.Embeddings.HighOrder) == 0) {
		missing = append(missing, "the extractor needs high-order embeddings (high_order_files)")
	}
	if caps.NeedsTranslationModel && res.Translation == nil {
		missing = append(missing, "the extractor needs a translation model (giza_root_dir, giza_iter_qty)")
	}
	if len(missing) > 0 {
		return apperrors.ConfigError(strings.Join(missing, "; "))
	}
	return nil
}

// ParseCapabilities returns the needs of an extractor spec without building it.
func ParseCapabilities(spec string) (Capabilities, error) {
	var caps Capabilities
	names, err := splitSpec(spec)
	if err != nil {
		return caps, err
	}
	for _, name := range names {
		caps = caps.merge(componentCaps[name])
	}
	return caps, nil
}

var componentCaps = map[string]Capabilities{
	TypeTFIDF:   {},
	TypeEmbed:   {NeedsEmbeddings: true},
	TypeEmbedHO: {NeedsHighOrderEmbeddings: true},
	TypeModel1:  {NeedsTranslationModel: true},
}

// Types lists the extractor types that can be composed with '+'.
func Types() []string {
	return []string{TypeTFIDF, TypeEmbed, TypeEmbedHO, TypeModel1}
}

func splitSpec(spec string) ([]string, error) {
	var names []string
	for _, part := range strings.Split(spec, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if _, ok := componentCaps[name]; !ok {
			return nil, apperrors.ConfigErrorf("wrong feature extractor type: '%s' (must be one of %s, joined with '+')",
				part, strings.Join(Types(), ", "))
		}
		names = append(names, name)
	}
	return names, nil
}

// New builds the extractor described by spec, e.g. "tfidf+embed".
// addRankScores marks the extractor as wanting original rank/score features.
func New(spec string, res Resources, addRankScores bool) (*Composite, error) {
	names, err := splitSpec(spec)
	if err != nil {
		return nil, err
	}

	caps, _ := ParseCapabilities(spec)
	caps.WantsRankScoreFeatures = addRankScores
	if err := CheckCapabilities(caps, res); err != nil {
		return nil, err
	}

	c := &Composite{name: strings.Join(names, "+"), index: res.Index, caps: caps}
	for _, name := range names {
		var comp component
		switch name {
		case TypeTFIDF:
			comp = &tfidf{index: res.Index}
		case TypeEmbed:
			comp = &embedCosine{tables: res.Embeddings.Regular}
		case TypeEmbedHO:
			comp = &embedCosine{tables: res.Embeddings.HighOrder}
		case TypeModel1:
			comp = &model1{table: res.Translation}
		}
		c.parts = append(c.parts, comp)
		c.qty += comp.qty()
	}
	return c, nil
}

// batch holds what the components of one Features call share.
type batch struct {
	docIDs     []string
	queryText  string
	queryTerms []string
	texts      map[string]string
	docTerms   map[string][]string
}

// component fills qty() consecutive features of every vector, starting at offset.
type component interface {
	qty() int
	fill(ctx context.Context, b *batch, vecs map[string]Vector, offset int) error
}

// Composite concatenates the features of its components in order.
type Composite struct {
	name  string
	index *index.Store
	parts []component
	qty   int
	caps  Capabilities
}

// Name returns the normalized extractor spec.
func (c *Composite) Name() string { return c.name }

// FeatureQty returns the total number of features.
func (c *Composite) FeatureQty() int { return c.qty }

// Capabilities returns the merged needs of all components.
func (c *Composite) Capabilities() Capabilities { return c.caps }

// Features extracts features for a batch. Documents missing from the
// forward index get vectors computed from empty text.
func (c *Composite) Features(ctx context.Context, docIDs []string, fields query.Fields) (map[string]Vector, error) {
	texts, err := c.index.Texts(ctx, docIDs)
	if err != nil {
		return nil, apperrors.BackendError("reading documents from the forward index", err)
	}

	b := &batch{
		docIDs:    docIDs,
		queryText: fields.Text(query.FieldText),
		texts:     texts,
		docTerms:  make(map[string][]string, len(docIDs)),
	}
	b.queryTerms = query.Terms(b.queryText)
	for _, id := range docIDs {
		b.docTerms[id] = query.Terms(texts[id])
	}

	vecs := make(map[string]Vector, len(docIDs))
	for _, id := range docIDs {
		vecs[id] = make(Vector, c.qty)
	}

	offset := 0
	for _, p := range c.parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.fill(ctx, b, vecs, offset); err != nil {
			return nil, err
		}
		offset += p.qty()
	}
	return vecs, nil
}

func (c *Composite) String() string {
	return fmt.Sprintf("%s (%d features)", c.name, c.qty)
}
