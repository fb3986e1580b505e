package quality

// Standard rule sets applied at the layer boundaries. These mirror the
// promotion policy: identity and lineage columns block, statistical
// sanity columns only warn.

// ProcessedStoryRules gates the raw -> processed promotion for stories.
func ProcessedStoryRules() []Rule {
	return []Rule{
		NotNull(Blocking, "id", "type", "time", "ingestion_date"),
		Unique(Blocking, "id"),
		TypeOf(Blocking, "id", TypeInt),
		Range(Advisory, "score", Float(0), nil),
		Range(Advisory, "descendants", Float(0), nil),
		Volume(Advisory, 1, 0),
	}
}

// ProcessedCommentRules gates the raw -> processed promotion for
// comments. validParents is the universe of known story and comment ids.
func ProcessedCommentRules(validParents map[int64]struct{}) []Rule {
	return []Rule{
		NotNull(Blocking, "id", "type", "time", "parent", "ingestion_date"),
		Unique(Blocking, "id"),
		TypeOf(Blocking, "id", TypeInt),
		ReferentialIntegrity(Blocking, "parent", validParents),
		Volume(Advisory, 1, 0),
	}
}

// OutputStoryRules gates the processed -> output promotion for enriched
// stories. The temporal metric columns are load-bearing for reporting and
// therefore block; topics may legitimately be null.
func OutputStoryRules() []Rule {
	return []Rule{
		NotNull(Blocking, "id", "type", "time", "ingestion_date"),
		Unique(Blocking, "id"),
		NotNull(Blocking, "score_velocity", "comment_velocity", "observations_in_window"),
		Range(Advisory, "hours_to_peak", Float(0), nil),
		Volume(Advisory, 1, 0),
	}
}

// OutputCommentRules gates the processed -> output promotion for
// enriched comments.
func OutputCommentRules(validParents map[int64]struct{}) []Rule {
	return []Rule{
		NotNull(Blocking, "id", "type", "time", "parent", "ingestion_date"),
		Unique(Blocking, "id"),
		ReferentialIntegrity(Blocking, "parent", validParents),
		NotNull(Advisory, "sentiment_score", "sentiment_label"),
		Range(Advisory, "sentiment_score", Float(-1), Float(1)),
		Volume(Advisory, 1, 0),
	}
}
