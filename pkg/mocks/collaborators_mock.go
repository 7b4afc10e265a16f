package mocks

import (
	"context"

	"github.com/dukex/flows/pkg/mailchimp"
	"github.com/dukex/flows/pkg/mailer"
	"github.com/dukex/flows/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockFanReader is a mock implementation of protocol.FanReader.
type MockFanReader struct {
	mock.Mock
}

func (m *MockFanReader) GetFan(ctx context.Context, workspaceID, fanID string) (*models.Fan, error) {
	args := m.Called(ctx, workspaceID, fanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Fan), args.Error(1)
}

// MockProviderAccountReader is a mock implementation of protocol.ProviderAccountReader.
type MockProviderAccountReader struct {
	mock.Mock
}

func (m *MockProviderAccountReader) GetProviderAccount(ctx context.Context, workspaceID, provider string) (*models.ProviderAccount, error) {
	args := m.Called(ctx, workspaceID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ProviderAccount), args.Error(1)
}

// MockAudienceClient is a mock implementation of mailchimpaudience.AudienceClient.
type MockAudienceClient struct {
	mock.Mock
}

func (m *MockAudienceClient) AddListMember(ctx context.Context, account *models.ProviderAccount, listID string, member mailchimp.Member) error {
	args := m.Called(ctx, account, listID, member)

	return args.Error(0)
}

// MockMailer is a mock implementation of mailer.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}
