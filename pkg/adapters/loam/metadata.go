package loam

// StageMetadata is the frontmatter of a stage document. The markdown body
// becomes the stage prompt.
// It uses "mapstructure" tags so both snake_case and the camelCase keys of
// exported JSON configs are accepted.
type StageMetadata struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
	Type string `json:"type" mapstructure:"type"`

	// Order positions the stage in declaration order. Ties are broken by id.
	Order int `json:"order" mapstructure:"order"`

	Next      []StageEdge `json:"next_stages" mapstructure:"next_stages"`
	NextCamel []StageEdge `json:"nextStages" mapstructure:"nextStages"`

	InCondition      string `json:"in_condition" mapstructure:"in_condition"`
	InConditionCamel string `json:"inCondition" mapstructure:"inCondition"`

	// Prompt overrides the document body when set, for JSON and YAML documents.
	Prompt string `json:"prompt" mapstructure:"prompt"`
}

// StageEdge is one outgoing edge in frontmatter.
type StageEdge struct {
	To          string `json:"to" mapstructure:"to"`
	NextStageID string `json:"nextStageId" mapstructure:"nextStageId"`
	Condition   string `json:"condition" mapstructure:"condition"`
}
