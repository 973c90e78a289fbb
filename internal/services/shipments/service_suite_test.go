package shipments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/RekaTrack/internal/apperr"
	cachemocks "github.com/BearBump/RekaTrack/internal/cache/mocks"
	"github.com/BearBump/RekaTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetTravelDocument(ctx context.Context, id int64) (models.Shipment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Shipment), args.Error(1)
}

type ServiceSuite struct {
	suite.Suite

	client *mockClient
	cache  *cachemocks.MockBytesCache
	svc    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.client = &mockClient{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.client, s.cache, time.Minute)
}

func (s *ServiceSuite) TestDetail_CacheHit_NoRequest() {
	sh := models.Shipment{ID: 7, Status: models.ShipmentStatusInTransit}
	b, _ := json.Marshal(sh)
	s.cache.On("Get", mock.Anything, "travel-document:7").Return(b, true, nil).Once()

	got, err := s.svc.Detail(context.Background(), 7, false)
	s.Require().NoError(err)
	s.Equal(sh, got)
	s.client.AssertNotCalled(s.T(), "GetTravelDocument", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestDetail_CacheMiss_FetchesAndStores() {
	sh := models.Shipment{ID: 8, Status: "Belum dikirim"}
	b, _ := json.Marshal(sh)
	s.cache.On("Get", mock.Anything, "travel-document:8").Return(nil, false, nil).Once()
	s.client.On("GetTravelDocument", mock.Anything, int64(8)).Return(sh, nil).Once()
	s.cache.On("Set", mock.Anything, "travel-document:8", b, time.Minute).Return(nil).Once()

	got, err := s.svc.Detail(context.Background(), 8, false)
	s.Require().NoError(err)
	s.Equal(sh, got)
	s.cache.AssertExpectations(s.T())
	s.client.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestDetail_RefreshBypassesCache() {
	sh := models.Shipment{ID: 9}
	s.client.On("GetTravelDocument", mock.Anything, int64(9)).Return(sh, nil).Once()
	s.cache.On("Set", mock.Anything, "travel-document:9", mock.Anything, time.Minute).Return(nil).Once()

	_, err := s.svc.Detail(context.Background(), 9, true)
	s.Require().NoError(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestDetail_CacheErrorFallsBackToServer() {
	s.cache.On("Get", mock.Anything, "travel-document:3").Return(nil, false, errors.New("redis down")).Once()
	s.client.On("GetTravelDocument", mock.Anything, int64(3)).Return(models.Shipment{ID: 3}, nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	got, err := s.svc.Detail(context.Background(), 3, false)
	s.Require().NoError(err)
	s.Equal(int64(3), got.ID)
}

func (s *ServiceSuite) TestDetail_ServerErrorNotCached() {
	s.cache.On("Get", mock.Anything, "travel-document:4").Return(nil, false, nil).Once()
	s.client.On("GetTravelDocument", mock.Anything, int64(4)).
		Return(models.Shipment{}, apperr.Server(404, "not found", nil)).Once()

	_, err := s.svc.Detail(context.Background(), 4, false)
	s.Require().True(apperr.Is(err, apperr.KindServer))
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestScan_InvalidCode_NoRequest() {
	_, err := s.svc.Scan(context.Background(), "QR:123", false)
	s.Require().Error(err)
	s.Equal(MsgInvalidScan, apperr.UserMessage(err, ""))
	s.client.AssertNotCalled(s.T(), "GetTravelDocument", mock.Anything, mock.Anything)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
