package salesforce

import (
	"net/url"
	"strings"
)

// FlowSetupURL links to the flow's page in Setup, where versions can be activated by hand.
func FlowSetupURL(instanceURL, definitionID string) string {
	return strings.TrimRight(instanceURL, "/") + "/lightning/setup/Flows/page?address=" + url.QueryEscape("/"+definitionID)
}

// FlowEditURL opens a specific flow version in Flow Builder.
func FlowEditURL(instanceURL, flowVersionID string) string {
	return strings.TrimRight(instanceURL, "/") + "/builder_platform_interaction/flowBuilder.app?flowId=" + url.QueryEscape(flowVersionID)
}

// FlowListURL links to the Flows list view in Setup.
func FlowListURL(instanceURL string) string {
	return strings.TrimRight(instanceURL, "/") + "/lightning/setup/Flows/home"
}
