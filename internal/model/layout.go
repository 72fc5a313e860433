package model

// LayoutField describes one editable field or column as configured on the
// server. The UI renders whatever the layout names; keys that are not fixed
// attributes land in the report's extra bag.
type LayoutField struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	EditorType string `json:"editorType,omitempty"`
	Order      int    `json:"order,omitempty"`
	Width      int    `json:"width,omitempty"`
}

type LayoutConfig struct {
	TbFields           []LayoutField `json:"tbFields"`
	RsFields           []LayoutField `json:"rsFields"`
	StreetwatchColumns []LayoutField `json:"streetwatchColumns"`
}

type WorkdayLayout struct {
	Name           string       `json:"name"`
	DocumentTypeTb string       `json:"documentTypeTb"`
	DocumentTypeRs string       `json:"documentTypeRs"`
	Config         LayoutConfig `json:"config"`
}
