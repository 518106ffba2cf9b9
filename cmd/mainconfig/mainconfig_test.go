package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/ridgeline-site/internal/config"
)

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-2",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadAWSConfig: %v", err)
	}
	if awsCfg.Region != "us-east-2" {
		t.Fatalf("expected region us-east-2, got %q", awsCfg.Region)
	}

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}

	for _, svc := range []string{dynamodb.ServiceID, sesv2.ServiceID} {
		ep, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(svc, "us-east-2")
		if err != nil {
			t.Fatalf("%s: resolve endpoint: %v", svc, err)
		}
		if ep.URL != "http://localhost:4566" {
			t.Fatalf("%s: expected override endpoint, got %q", svc, ep.URL)
		}
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("S3", "us-east-2"); err == nil {
		t.Fatal("expected other services to fall through to the default resolver")
	}
}

func TestAWSLoaderCachesConfig(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "us-east-1", AWSAccessKeyID: "a", AWSSecretAccessKey: "b"}
	load := AWSLoader(cfg)

	first, err := load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.AWSRegion = "eu-west-1"
	second, err := load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first.Region != second.Region {
		t.Fatalf("expected cached config, got %q then %q", first.Region, second.Region)
	}
}
