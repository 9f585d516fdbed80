package models

const TransformExpression = "expression"

type Transform struct {
	Type       string `json:"type" bson:"type"`
	Expression string `json:"expression" bson:"expression"`
}

// Rule is the serialized form of one FieldMapping handed to the downstream
// executor.
type Rule struct {
	Key         string    `json:"key" bson:"key"`
	IsPK        bool      `json:"isPK" bson:"isPK"`
	SourceField string    `json:"sourceField" bson:"sourceField"`
	DataType    DataType  `json:"dataType" bson:"dataType"`
	RuleType    RuleType  `json:"ruleType" bson:"ruleType"`
	Transform   Transform `json:"transform" bson:"transform"`
}

type APISource struct {
	RequestURL    string     `json:"request_url" bson:"request_url"`
	RequestMethod string     `json:"request_method" bson:"request_method"`
	AuthMethod    AuthMethod `json:"authorization_method" bson:"authorization_method"`
	BasicUsername string     `json:"basic_username,omitempty" bson:"basic_username,omitempty"`
	BasicPassword string     `json:"basic_password,omitempty" bson:"basic_password,omitempty"`
	APIToken      string     `json:"api_token_url,omitempty" bson:"api_token_url,omitempty"`
	APITokenBody  string     `json:"api_token_body,omitempty" bson:"api_token_body,omitempty"`
	Interval      string     `json:"interval" bson:"interval"`
}

type DataStore struct {
	Name             string `json:"name" bson:"name"`
	ProcessingMethod string `json:"data_processing_method" bson:"data_processing_method"`
	DataFormat       string `json:"data_formate" bson:"data_formate"`
	Rules            []Rule `json:"data" bson:"data"`
}

// DataStoreJob is the complete payload persisted by a sink.
type DataStoreJob struct {
	ID        string    `json:"id" bson:"jobId"`
	API       APISource `json:"api" bson:"api"`
	DataStore DataStore `json:"dataStore" bson:"dataStore"`
}
