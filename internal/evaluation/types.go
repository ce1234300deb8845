package evaluation

// QueryResult contains metrics for one query at one result size.
type QueryResult struct {
	QueryID     string  `json:"query_id"`
	K           int     `json:"k"`
	NDCG        float64 `json:"ndcg"`
	Recall      float64 `json:"recall"`
	Precision   float64 `json:"precision"`
	MRR         float64 `json:"mrr"`
	AP          float64 `json:"ap"`
	ResultCount int     `json:"result_count"`
}

// Summary aggregates metrics across queries for one result size.
type Summary struct {
	K             int     `json:"k"`
	QueryCount    int     `json:"query_count"`
	MeanNDCG      float64 `json:"mean_ndcg"`
	MeanRecall    float64 `json:"mean_recall"`
	MeanPrecision float64 `json:"mean_precision"`
	MeanMRR       float64 `json:"mean_mrr"`
	MAP           float64 `json:"map"`
}
