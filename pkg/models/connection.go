package models

type AuthMethod string

const (
	AuthNone   AuthMethod = ""
	AuthAPIKey AuthMethod = "apiKey"
	AuthBearer AuthMethod = "Bearer"
	AuthBasic  AuthMethod = "Basic"
)

// UsesToken reports whether the method sends an API token.
func (a AuthMethod) UsesToken() bool {
	return a == AuthBearer || a == AuthAPIKey
}

// ConnectionForm is the snapshot of the connection setup step.
type ConnectionForm struct {
	DataStoreName     string     `json:"dataStoreName" yaml:"dataStoreName"`
	DataEndpoint      string     `json:"dataEndpoint" yaml:"dataEndpoint"`
	RequestMethod     string     `json:"requestMethod" yaml:"requestMethod"`
	RequestParameters string     `json:"requestParameters,omitempty" yaml:"requestParameters,omitempty"`
	DataFormat        string     `json:"dataFormat" yaml:"dataFormat"`
	Interval          string     `json:"interval" yaml:"interval"`
	ProcessingMethod  string     `json:"dataProcessingMethod" yaml:"dataProcessingMethod"`
	AuthMethod        AuthMethod `json:"authMethod" yaml:"authMethod"`
	APIKey            string     `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Username          string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password          string     `json:"password,omitempty" yaml:"password,omitempty"`
	Tested            bool       `json:"testApiConnection" yaml:"-"`
}

// DefaultConnectionForm returns the form a new wizard starts from.
func DefaultConnectionForm() ConnectionForm {
	return ConnectionForm{
		RequestMethod:    "GET",
		DataFormat:       "json",
		Interval:         "5m",
		ProcessingMethod: "replace",
		AuthMethod:       AuthNone,
	}
}

// SameTarget reports whether both forms would hit the endpoint with the same
// request. A connection test only stays valid while this holds.
func (f ConnectionForm) SameTarget(other ConnectionForm) bool {
	return f.DataEndpoint == other.DataEndpoint &&
		f.RequestMethod == other.RequestMethod &&
		f.RequestParameters == other.RequestParameters &&
		f.AuthMethod == other.AuthMethod &&
		f.APIKey == other.APIKey &&
		f.Username == other.Username &&
		f.Password == other.Password
}

type ConnectionErrors struct {
	DataStoreName     FieldError `json:"dataStoreName"`
	DataEndpoint      FieldError `json:"dataEndpoint"`
	APIKey            FieldError `json:"apiKey"`
	Username          FieldError `json:"username"`
	Password          FieldError `json:"password"`
	TestAPIConnection FieldError `json:"testApiConnection"`
}

// Fields returns the errors keyed by form field, including empty ones.
func (e ConnectionErrors) Fields() map[string]FieldError {
	return map[string]FieldError{
		"dataStoreName":     e.DataStoreName,
		"dataEndpoint":      e.DataEndpoint,
		"apiKey":            e.APIKey,
		"username":          e.Username,
		"password":          e.Password,
		"testApiConnection": e.TestAPIConnection,
	}
}
