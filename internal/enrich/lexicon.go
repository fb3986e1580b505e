package enrich

// valenceLexicon maps sentiment-bearing terms to their mean valence on
// the [-4, 4] scale. A hand-curated subset covering the vocabulary that
// dominates tech-forum discussion.
var valenceLexicon = map[string]float64{
	// positive
	"amazing": 2.8, "awesome": 3.1, "beautiful": 2.9, "best": 3.2,
	"better": 1.9, "brilliant": 2.8, "clean": 1.6, "clever": 2.2,
	"cool": 1.3, "correct": 1.7, "delightful": 2.9, "easy": 1.9,
	"effective": 2.1, "efficient": 1.8, "elegant": 2.2, "enjoy": 2.2,
	"excellent": 2.7, "excited": 2.3, "fantastic": 2.6, "fast": 1.4,
	"favorite": 2.0, "fun": 2.3, "glad": 2.0, "good": 1.9, "great": 3.1,
	"happy": 2.7, "helpful": 1.8, "impressive": 2.3, "improved": 1.6,
	"improvement": 1.4, "incredible": 2.4, "interesting": 1.7,
	"intuitive": 1.6, "like": 1.5, "love": 3.2, "loved": 2.9,
	"nice": 1.8, "perfect": 2.7, "pleasant": 2.3, "powerful": 1.7,
	"recommend": 1.6, "reliable": 1.9, "right": 1.2, "robust": 1.6,
	"simple": 1.2, "smart": 1.8, "solid": 1.3, "stable": 1.2,
	"succeed": 2.2, "success": 2.7, "superb": 3.0, "thanks": 1.9,
	"useful": 1.9, "valuable": 2.1, "win": 2.8, "wonderful": 2.7,
	"works": 1.3, "worth": 1.3,

	// negative
	"abandoned": -1.5, "annoying": -1.8, "awful": -2.8, "bad": -2.5,
	"breaks": -1.4, "broken": -2.0, "bug": -1.5, "buggy": -1.9,
	"confusing": -1.6, "crash": -2.0, "crashes": -2.0, "dangerous": -2.1,
	"dead": -2.9, "difficult": -1.5, "disappointed": -2.1,
	"disappointing": -2.2, "disaster": -3.1, "dislike": -1.6,
	"error": -1.6, "fail": -2.3, "failed": -2.3, "failure": -2.4,
	"fake": -1.8, "flaw": -1.8, "flawed": -1.9, "fraud": -2.8,
	"frustrating": -2.1, "garbage": -2.3, "hate": -2.7, "horrible": -2.5,
	"impossible": -1.6, "insecure": -1.6, "lie": -2.4, "lose": -1.9,
	"loss": -1.7, "mess": -1.6, "miserable": -2.7, "mistake": -1.7,
	"nasty": -2.3, "outdated": -1.2, "painful": -2.0, "poor": -2.1,
	"problem": -1.4, "sad": -2.1, "scam": -2.6, "slow": -1.2,
	"stupid": -2.4, "terrible": -2.6, "tragic": -2.6, "ugly": -2.1,
	"unreliable": -1.8, "unstable": -1.5, "unusable": -2.2,
	"useless": -1.9, "vulnerability": -1.6, "waste": -2.0, "worse": -2.1,
	"worst": -3.1, "wrong": -2.1,
}
