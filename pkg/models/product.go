package models

// ProductForm is the connection step of the data product wizard, which
// publishes a data store under an API path.
type ProductForm struct {
	ProductName string     `json:"productName" yaml:"productName"`
	APIPath     string     `json:"apiPath" yaml:"apiPath"`
	AuthMethod  AuthMethod `json:"authMethod" yaml:"authMethod"`
	APIKey      string     `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Username    string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string     `json:"password,omitempty" yaml:"password,omitempty"`
}

type ProductErrors struct {
	ProductName FieldError `json:"productName"`
	APIPath     FieldError `json:"apiPath"`
	APIKey      FieldError `json:"apiKey"`
	Username    FieldError `json:"username"`
	Password    FieldError `json:"password"`
}

func (e ProductErrors) Valid() bool {
	return e == ProductErrors{}
}

// Fields returns the errors keyed by form field, including empty ones.
func (e ProductErrors) Fields() map[string]FieldError {
	return map[string]FieldError{
		"productName": e.ProductName,
		"apiPath":     e.APIPath,
		"apiKey":      e.APIKey,
		"username":    e.Username,
		"password":    e.Password,
	}
}
