// Package observability provides metrics for the dependency waiter.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrDependency = "dependency"
	attrOutcome    = "outcome"
	attrSuccess    = "success"
)

func dependencyAttr(name string) attribute.KeyValue {
	return attribute.String(attrDependency, name)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}
