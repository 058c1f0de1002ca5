package tencent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/regions"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"

	"lyric-player/pkg/music"
)

// 批量翻译单次最多提交的行数
const batchSize = 50

func logger() *zerolog.Logger {
	l := log.With().Str("component", "tencent-tmt").Logger()
	return &l
}

var _ music.Translator = (*Client)(nil)

// Client 腾讯云机器翻译
type Client struct {
	tmtClient *tmt.Client
	target    string
	projectID int64
}

// Option 客户端选项
type Option func(*profile.ClientProfile)

// WithEndpoint 指定接入地址，scheme 为 HTTP 或 HTTPS
func WithEndpoint(scheme, endpoint string) Option {
	return func(cpf *profile.ClientProfile) {
		cpf.HttpProfile.Scheme = scheme
		cpf.HttpProfile.Endpoint = endpoint
	}
}

// NewClient 创建翻译客户端，region 为空时使用广州，target 为空时翻译成中文
func NewClient(secretID, secretKey, region, target string, opts ...Option) (*Client, error) {
	credential := common.NewCredential(secretID, secretKey)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.ReqMethod = "POST"
	cpf.HttpProfile.ReqTimeout = 10
	for _, opt := range opts {
		opt(cpf)
	}

	if region == "" {
		region = regions.Guangzhou
	}
	if target == "" {
		target = "zh"
	}

	tmtClient, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		log.Error().Err(err).Msg("new tencent client error")
		return nil, err
	}
	return &Client{tmtClient: tmtClient, target: target}, nil
}

func (c *Client) Name() string {
	return "tencent"
}

// DetectLanguage 识别文本语言
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	request := tmt.NewLanguageDetectRequest()
	request.Text = common.StringPtr(text)
	request.ProjectId = common.Int64Ptr(c.projectID)

	response, err := c.tmtClient.LanguageDetectWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("language detect failed: %w", err)
	}
	if response.Response == nil || response.Response.Lang == nil {
		return "", errors.New("language detect returned no language")
	}
	return *response.Response.Lang, nil
}

// TranslateLines 批量翻译歌词行
//
// 原文语言与目标语言相同时不调用翻译接口，直接返回原文。
func (c *Client) TranslateLines(ctx context.Context, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}

	lang, err := c.DetectLanguage(ctx, strings.Join(lines, "\n"))
	if err != nil {
		return nil, err
	}
	if lang == c.target {
		logger().Debug().Str("lang", lang).Msg("Lyrics already in target language")
		return append([]string(nil), lines...), nil
	}

	out := make([]string, 0, len(lines))
	for start := 0; start < len(lines); start += batchSize {
		end := start + batchSize
		if end > len(lines) {
			end = len(lines)
		}

		request := tmt.NewTextTranslateBatchRequest()
		request.Source = common.StringPtr(lang)
		request.Target = common.StringPtr(c.target)
		request.ProjectId = common.Int64Ptr(c.projectID)
		request.SourceTextList = common.StringPtrs(lines[start:end])

		response, err := c.tmtClient.TextTranslateBatchWithContext(ctx, request)
		if err != nil {
			logger().Error().Err(err).Msg("failed to send request")
			return nil, fmt.Errorf("text translate failed: %w", err)
		}
		if response.Response == nil || len(response.Response.TargetTextList) != end-start {
			return nil, errors.New("text translate returned unexpected line count")
		}
		for _, t := range response.Response.TargetTextList {
			if t == nil {
				out = append(out, "")
				continue
			}
			out = append(out, *t)
		}
	}
	return out, nil
}
