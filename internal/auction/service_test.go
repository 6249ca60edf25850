package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/model"
	"github.com/hitoshi/auctiond/internal/security"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// mockAuctionRepo はテスト用のAuctionRepository実装。
type mockAuctionRepo struct {
	createFunc   func(ctx context.Context, auction *model.Auction) error
	findByIDFunc func(ctx context.Context, id int64) (*model.Auction, error)
	listFunc     func(ctx context.Context, onlyActive bool, limit int) ([]*model.Auction, error)
}

func (m *mockAuctionRepo) Create(ctx context.Context, auction *model.Auction) error {
	return m.createFunc(ctx, auction)
}

func (m *mockAuctionRepo) FindByID(ctx context.Context, id int64) (*model.Auction, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockAuctionRepo) List(ctx context.Context, onlyActive bool, limit int) ([]*model.Auction, error) {
	return m.listFunc(ctx, onlyActive, limit)
}

func (m *mockAuctionRepo) SnapshotByID(ctx context.Context, id int64) (*model.AuctionSnapshot, error) {
	return nil, nil
}

func (m *mockAuctionRepo) ListDueForClose(ctx context.Context, now time.Time) ([]*model.Auction, error) {
	return nil, nil
}

func (m *mockAuctionRepo) CloseIfActive(ctx context.Context, id int64, now time.Time) (bool, error) {
	return false, nil
}

// mockBidRepo はテスト用のBidRepository実装。
type mockBidRepo struct {
	listByAuctionFunc    func(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error)
	listUserBestBidsFunc func(ctx context.Context, userID int64) ([]model.UserBidSummary, error)
}

func (m *mockBidRepo) InsertIfLeading(ctx context.Context, auctionID, userID int64, amount decimal.Decimal, now time.Time) (*model.Bid, error) {
	return nil, nil
}

func (m *mockBidRepo) HighestBid(ctx context.Context, auctionID int64) (*model.BidWithBidder, error) {
	return nil, nil
}

func (m *mockBidRepo) ListByAuction(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error) {
	return m.listByAuctionFunc(ctx, auctionID)
}

func (m *mockBidRepo) LatestBidTime(ctx context.Context, auctionID int64) (*time.Time, error) {
	return nil, nil
}

func (m *mockBidRepo) ListBidderIDs(ctx context.Context, auctionID int64) ([]int64, error) {
	return nil, nil
}

func (m *mockBidRepo) ListUserBestBids(ctx context.Context, userID int64) ([]model.UserBidSummary, error) {
	return m.listUserBestBidsFunc(ctx, userID)
}

func newTestService(auctionRepo *mockAuctionRepo, bidRepo *mockBidRepo) *Service {
	return NewService(auctionRepo, bidRepo, security.NewContentSanitizer(), clock.FixedClock{Time: testNow})
}

func validInput() CreateInput {
	return CreateInput{
		OwnerID:   1,
		Title:     "古いカメラ",
		BasePrice: decimal.NewFromInt(1000),
		StartTime: testNow,
		EndTime:   testNow.Add(24 * time.Hour),
	}
}

func TestCreate_Succeeds(t *testing.T) {
	repo := &mockAuctionRepo{
		createFunc: func(ctx context.Context, auction *model.Auction) error {
			auction.ID = 1
			return nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	auction, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if auction.ID != 1 {
		t.Errorf("ID = %d, want 1", auction.ID)
	}
	if auction.Status != model.AuctionStatusActive {
		t.Errorf("Status = %q, want active", auction.Status)
	}
	if !auction.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", auction.CreatedAt, testNow)
	}
}

func TestCreate_SanitizesTitle(t *testing.T) {
	var saved *model.Auction
	repo := &mockAuctionRepo{
		createFunc: func(ctx context.Context, auction *model.Auction) error {
			saved = auction
			return nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	input := validInput()
	input.Title = `古いカメラ<script>alert("x")</script>`
	input.Description = `美品です<img src=x onerror=alert(1)>`

	if _, err := svc.Create(context.Background(), input); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if saved.Title != "古いカメラ" {
		t.Errorf("Title = %q, want sanitized", saved.Title)
	}
	if saved.Description != "美品です" {
		t.Errorf("Description = %q, want sanitized", saved.Description)
	}
}

func TestCreate_EmptyTitleAfterSanitize_Rejected(t *testing.T) {
	repo := &mockAuctionRepo{
		createFunc: func(ctx context.Context, auction *model.Auction) error {
			t.Fatal("Create should not be called")
			return nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	for _, title := range []string{"", `<script>alert("x")</script>`} {
		input := validInput()
		input.Title = title
		_, err := svc.Create(context.Background(), input)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
	}
}

func TestCreate_NonPositiveBasePrice_Rejected(t *testing.T) {
	svc := newTestService(&mockAuctionRepo{}, &mockBidRepo{})

	for _, price := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-100)} {
		input := validInput()
		input.BasePrice = price
		_, err := svc.Create(context.Background(), input)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidAmount)
	}
}

func TestCreate_InvalidTimes_Rejected(t *testing.T) {
	svc := newTestService(&mockAuctionRepo{}, &mockBidRepo{})

	tests := []struct {
		name      string
		startTime time.Time
		endTime   time.Time
	}{
		{name: "終了が開始より前", startTime: testNow, endTime: testNow.Add(-time.Hour)},
		{name: "終了と開始が同時刻", startTime: testNow, endTime: testNow},
		{name: "終了が過去", startTime: testNow.Add(-2 * time.Hour), endTime: testNow.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			input.StartTime = tt.startTime
			input.EndTime = tt.endTime
			_, err := svc.Create(context.Background(), input)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidAuctionTimes)
		})
	}
}

// TestCreate_ZeroStartTime_DefaultsToNow は開始時刻省略時に現在時刻が
// 補完されることを検証する。
func TestCreate_ZeroStartTime_DefaultsToNow(t *testing.T) {
	var saved *model.Auction
	repo := &mockAuctionRepo{
		createFunc: func(ctx context.Context, auction *model.Auction) error {
			saved = auction
			return nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	input := validInput()
	input.StartTime = time.Time{}

	if _, err := svc.Create(context.Background(), input); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !saved.StartTime.Equal(testNow) {
		t.Errorf("StartTime = %v, want %v", saved.StartTime, testNow)
	}
}

func TestGetDetail_ReturnsBids(t *testing.T) {
	repo := &mockAuctionRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.Auction, error) {
			return &model.Auction{
				ID:      id,
				Title:   "古いカメラ",
				EndTime: testNow.Add(time.Hour),
				Status:  model.AuctionStatusActive,
			}, nil
		},
	}
	bidRepo := &mockBidRepo{
		listByAuctionFunc: func(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error) {
			return []model.BidWithBidder{
				{Bid: model.Bid{ID: 2, Amount: decimal.NewFromInt(2000)}, BidderName: "bob"},
				{Bid: model.Bid{ID: 1, Amount: decimal.NewFromInt(1500)}, BidderName: "alice"},
			}, nil
		},
	}
	svc := newTestService(repo, bidRepo)

	detail, err := svc.GetDetail(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetDetail failed: %v", err)
	}
	if len(detail.Bids) != 2 {
		t.Errorf("bids = %d, want 2", len(detail.Bids))
	}
	if detail.EffectiveStatus != model.AuctionStatusActive {
		t.Errorf("EffectiveStatus = %q, want active", detail.EffectiveStatus)
	}
}

func TestGetDetail_NotFound(t *testing.T) {
	repo := &mockAuctionRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.Auction, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	_, err := svc.GetDetail(context.Background(), 99)
	assertAPIErrorCode(t, err, model.ErrCodeAuctionNotFound)
}

// TestGetDetail_PastEndTime_EffectiveStatusEnded はスイープ未処理でも
// 終了時刻経過済みならendedとして表示されることを検証する。
func TestGetDetail_PastEndTime_EffectiveStatusEnded(t *testing.T) {
	repo := &mockAuctionRepo{
		findByIDFunc: func(ctx context.Context, id int64) (*model.Auction, error) {
			return &model.Auction{
				ID:      id,
				Title:   "古いカメラ",
				EndTime: testNow.Add(-time.Minute),
				Status:  model.AuctionStatusActive, // DB上はまだactive
			}, nil
		},
	}
	bidRepo := &mockBidRepo{
		listByAuctionFunc: func(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo, bidRepo)

	detail, err := svc.GetDetail(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetDetail failed: %v", err)
	}
	if detail.EffectiveStatus != model.AuctionStatusEnded {
		t.Errorf("EffectiveStatus = %q, want ended", detail.EffectiveStatus)
	}
}

func TestList_PassesFilterAndLimit(t *testing.T) {
	var gotActive bool
	var gotLimit int
	repo := &mockAuctionRepo{
		listFunc: func(ctx context.Context, onlyActive bool, limit int) ([]*model.Auction, error) {
			gotActive = onlyActive
			gotLimit = limit
			return []*model.Auction{}, nil
		},
	}
	svc := newTestService(repo, &mockBidRepo{})

	if _, err := svc.List(context.Background(), true); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !gotActive {
		t.Error("onlyActive should be true")
	}
	if gotLimit != defaultListLimit {
		t.Errorf("limit = %d, want %d", gotLimit, defaultListLimit)
	}
}

// TestMyBids_RecomputesStatus は終了時刻経過済みのサマリのステータスが
// endedに再計算されることを検証する。
func TestMyBids_RecomputesStatus(t *testing.T) {
	bidRepo := &mockBidRepo{
		listUserBestBidsFunc: func(ctx context.Context, userID int64) ([]model.UserBidSummary, error) {
			return []model.UserBidSummary{
				{AuctionID: 1, Status: model.AuctionStatusActive, EndTime: testNow.Add(time.Hour)},
				{AuctionID: 2, Status: model.AuctionStatusActive, EndTime: testNow.Add(-time.Minute)},
				{AuctionID: 3, Status: model.AuctionStatusEnded, EndTime: testNow.Add(-time.Hour)},
			}, nil
		},
	}
	svc := newTestService(&mockAuctionRepo{}, bidRepo)

	summaries, err := svc.MyBids(context.Background(), 1)
	if err != nil {
		t.Fatalf("MyBids failed: %v", err)
	}

	wantStatus := []model.AuctionStatus{
		model.AuctionStatusActive,
		model.AuctionStatusEnded,
		model.AuctionStatusEnded,
	}
	for i, want := range wantStatus {
		if summaries[i].Status != want {
			t.Errorf("summaries[%d].Status = %q, want %q", i, summaries[i].Status, want)
		}
	}
}

func assertAPIErrorCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be APIError, got %T: %v", err, err)
	}
	if apiErr.Code != want {
		t.Errorf("Code = %q, want %q", apiErr.Code, want)
	}
}
