package models

// Strategy identifies one deterministic match-key family.
type Strategy string

const (
	StrategyEmail   Strategy = "email_exact"
	StrategyPerson  Strategy = "person_name_exact"
	StrategyOrgName Strategy = "org_name_exact"
)

// AllStrategies in evaluation order.
var AllStrategies = []Strategy{StrategyEmail, StrategyPerson, StrategyOrgName}

// MatchKey is one (strategy, key) pair extracted from a contact.
type MatchKey struct {
	Strategy Strategy `json:"strategy"`
	Key      string   `json:"key"`
}

type Disposition string

const (
	DispositionObvious   Disposition = "obvious"
	DispositionAmbiguous Disposition = "ambiguous"
)

// DuplicateGroup is the ephemeral in-memory candidate set: contacts that
// share one match key, ordered oldest-created first.
type DuplicateGroup struct {
	Strategy  Strategy `json:"strategy"`
	Key       string   `json:"key"`
	MemberIDs []int64  `json:"member_ids"`
}

// Classification is the classifier's verdict for one group. PrimaryID is
// set only for obvious groups.
type Classification struct {
	Disposition Disposition `json:"disposition"`
	PrimaryID   int64       `json:"primary_id,omitempty"`
	Reason      string      `json:"reason"`
}
