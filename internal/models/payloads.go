package models

// These structs define the JSON payloads delivered to the pipeline entry point
// by Cloud Scheduler through Pub/Sub.

// PubSubMessage is the Pub/Sub envelope carried in a CloudEvent's data.
type PubSubMessage struct {
	Message struct {
		ID   string `json:"messageId"`
		Data []byte `json:"data"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// RunRequest is the optional JSON body of a trigger message. An empty body means a full run.
type RunRequest struct {
	Trigger       string `json:"trigger"`
	ReconcileOnly bool   `json:"reconcileOnly"`
}
