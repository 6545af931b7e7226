package functions

import "github.com/aws/aws-sdk-go-v2/aws/arn"

// FunctionARN returns the unqualified ARN of a local function.
func FunctionARN(region, accountID, name string) string {
	return arn.ARN{
		Partition: "aws",
		Service:   "lambda",
		Region:    region,
		AccountID: accountID,
		Resource:  "function:" + name,
	}.String()
}

// RuleARN returns the ARN of the EventBridge rule a schedule pretends to be.
func RuleARN(region, accountID, name string) string {
	return arn.ARN{
		Partition: "aws",
		Service:   "events",
		Region:    region,
		AccountID: accountID,
		Resource:  "rule/" + name,
	}.String()
}
