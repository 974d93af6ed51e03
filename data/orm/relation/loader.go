package relation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	dbsql "relgraph/data/db/sql"
	"relgraph/data/orm"
	apperrors "relgraph/errors"
	"relgraph/logging"
)

// Loader 关联加载入口。
//
// 每个属性独立初始化：失败只影响该属性，已完成的兄弟属性保持原样。
type Loader struct {
	meta      orm.IMetadataProvider
	resolver  *Resolver
	planner   *Planner
	assembler *Assembler

	logger      logging.Logger
	concurrency int
	sinks       []EventSink
}

// NewLoader 创建 Loader。client 的每次查询从连接池借用连接，结果集关闭即归还。
func NewLoader(client dbsql.ISql, meta orm.IMetadataProvider, factory orm.IModelFactory, opts ...Option) *Loader {
	o := options{concurrency: 1, cacheSize: defaultDescriptorCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.GetLogger()
	}

	return &Loader{
		meta:        meta,
		resolver:    NewResolver(meta, o.cacheSize),
		planner:     NewPlanner(meta, client),
		assembler:   NewAssembler(factory, client),
		logger:      o.logger.WithFields(logging.Component("relation.loader")),
		concurrency: o.concurrency,
		sinks:       o.sinks,
	}
}

// Resolver 返回内部解析器（用于诊断描述符缓存）
func (l *Loader) Resolver() *Resolver { return l.resolver }

// InitializeRelation 按注解初始化 owner 的一个关联属性，原地修改 owner。
//
// AutoSelect 关闭时直接返回，不赋值也不查询。
// 错误类型：*ConfigurationError、*PlanError、*QueryExecutionError。
func (l *Loader) InitializeRelation(ctx context.Context, owner orm.IRecord, property string, annotation orm.RelationAnnotation) error {
	return l.initialize(ctx, uuid.NewString(), owner, property, annotation)
}

// InitializeAll 初始化 owner 所属模型声明的全部关联属性。
//
// 并发度由 WithConcurrency 控制。各属性互不影响：某个属性失败时其余属性照常初始化，
// 返回值按声明顺序合并全部失败（errors.Join），全部成功时为 nil。
func (l *Loader) InitializeAll(ctx context.Context, owner orm.IRecord) error {
	model := owner.Model()
	loadID := uuid.NewString()
	properties := l.meta.RelationProperties(model)
	errs := make([]error, len(properties))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, property := range properties {
		i, property := i, property
		annotation, ok := l.meta.RelationAnnotation(model, property)
		if !ok {
			continue
		}
		g.Go(func() error {
			errs[i] = l.initialize(ctx, loadID, owner, property, annotation)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (l *Loader) initialize(ctx context.Context, loadID string, owner orm.IRecord, property string, annotation orm.RelationAnnotation) error {
	model := owner.Model()
	logger := l.logger.WithFields(
		logging.String("load_id", loadID),
		logging.String("model", model),
		logging.String("property", property),
	)

	if !l.resolver.AutoSelectEnabled(model, property) {
		logger.Debug(ctx, "autoselect disabled, relation left untouched")
		return nil
	}

	start := time.Now()
	res, err := l.load(ctx, owner, property, annotation)
	elapsed := time.Since(start)

	var code string
	if err != nil {
		fields := []logging.Field{logging.Error(err), logging.Duration("took", elapsed)}
		if appErr, ok := apperrors.Normalize(err).(apperrors.IError); ok {
			code = string(appErr.Code())
			fields = append(fields, logging.String("error_code", code))
			for _, k := range []string{"reason", "class"} {
				if v, ok := appErr.Details()[k]; ok {
					fields = append(fields, logging.Any(k, v))
				}
			}
		}
		logger.Warn(ctx, "relation initialization failed", fields...)
	} else {
		logger.Debug(ctx, "relation initialized",
			logging.String("kind", annotation.Kind.String()),
			logging.Int("rows", res.Rows),
			logging.Bool("skipped", res.Skipped),
			logging.Duration("took", elapsed))
	}

	evt := InitEvent{
		LoadID:   loadID,
		Model:    model,
		Property: property,
		Kind:     annotation.Kind.String(),
		Rows:     res.Rows,
		Skipped:  res.Skipped,
		Duration: elapsed,
		At:       start,
	}
	if err != nil {
		evt.Err = err.Error()
		evt.Code = code
	}
	l.publish(ctx, logger, evt)
	return err
}

func (l *Loader) load(ctx context.Context, owner orm.IRecord, property string, annotation orm.RelationAnnotation) (Result, error) {
	desc, err := l.resolver.Resolve(owner.Model(), property, annotation)
	if err != nil {
		return Result{}, err
	}

	// 字段表实例可能尚未写入键值，按空值处理
	key, _ := owner.GetField(desc.LocalKey)

	plan, err := l.planner.Plan(desc, key)
	if err != nil {
		return Result{}, err
	}
	return l.assembler.Assemble(ctx, plan, owner)
}

func (l *Loader) publish(ctx context.Context, logger logging.Logger, evt InitEvent) {
	for i, sink := range l.sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			logger.Warn(ctx, "init event delivery failed",
				logging.String("sink", fmt.Sprintf("%d:%T", i, sink)),
				logging.Error(err))
		}
	}
}
