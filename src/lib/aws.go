package lib

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// awsGetSdkConfig loads the default chain and, when iamRole is set, swaps in
// credentials for that role.
func awsGetSdkConfig(ctx context.Context, iamRole string) (*aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("[aws] Error loading default config: %s\n", err.Error())
		return nil, err
	}
	if iamRole == "" {
		return &cfg, nil
	}
	stsClient := sts.NewFromConfig(cfg)
	output, err := stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(iamRole),
		RoleSessionName: aws.String("homejobs-api"),
	})
	if err != nil {
		log.Printf("[aws] Error configuring STS client: %s\n", err.Error())
		return nil, err
	}
	creds := output.Credentials
	cfg, err = config.LoadDefaultConfig(ctx, config.WithCredentialsProvider(
		credentials.NewStaticCredentialsProvider(*creds.AccessKeyId, *creds.SecretAccessKey, *creds.SessionToken),
	))
	if err != nil {
		log.Printf("[aws] Error configuration: %s\n", err.Error())
		return nil, err
	}
	return &cfg, nil
}

func AWSGetSNSClient(ctx context.Context, iamRole string) (*sns.Client, error) {
	cfg, err := awsGetSdkConfig(ctx, iamRole)
	if err != nil {
		log.Printf("[aws] Failed to initialize SNS client: %s\n", err.Error())
		return nil, err
	}
	return sns.NewFromConfig(*cfg), nil
}
